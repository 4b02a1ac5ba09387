// Package store persists prompter scripts. Two implementations are
// provided: an in-memory store for single-run setups and tests, and a
// PostgreSQL store for shared deployments.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no script exists under the requested ID.
var ErrNotFound = errors.New("store: script not found")

// Script is a stored prompter script.
type Script struct {
	// ID uniquely identifies the script.
	ID string

	// Title is a human-readable name.
	Title string

	// Body is the full script text.
	Body string

	// CreatedAt and UpdatedAt are set by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the script persistence interface.
type Store interface {
	// Get returns the script with the given ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (*Script, error)

	// Put inserts or updates a script. The stored timestamps are written
	// back into s.
	Put(ctx context.Context, s *Script) error

	// Delete removes a script. Deleting a missing ID returns [ErrNotFound].
	Delete(ctx context.Context, id string) error

	// List returns all scripts ordered by ID, bodies included.
	List(ctx context.Context) ([]*Script, error)

	// Close releases any underlying resources.
	Close() error
}

// Memory is an in-process [Store]. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	scripts map[string]*Script

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scripts: make(map[string]*Script),
		now:     time.Now,
	}
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, id string) (*Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// Put implements [Store].
func (m *Memory) Put(_ context.Context, s *Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.scripts[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	cp := *s
	m.scripts[s.ID] = &cp
	return nil
}

// Delete implements [Store].
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[id]; !ok {
		return ErrNotFound
	}
	delete(m.scripts, id)
	return nil
}

// List implements [Store].
func (m *Memory) List(_ context.Context) ([]*Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Script, 0, len(m.scripts))
	for _, s := range m.scripts {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close implements [Store]. It is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

// Ensure Memory implements Store at compile time.
var _ Store = (*Memory)(nil)
