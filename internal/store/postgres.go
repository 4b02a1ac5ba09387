package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. IF NOT EXISTS keeps it safe to run against
// an already-initialised database.
const schema = `
CREATE TABLE IF NOT EXISTS scripts (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is a [Store] backed by a PostgreSQL database via pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn, applies the schema, and
// returns a ready store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Get implements [Store].
func (p *Postgres) Get(ctx context.Context, id string) (*Script, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, title, body, created_at, updated_at FROM scripts WHERE id = $1`, id)

	var s Script
	if err := row.Scan(&s.ID, &s.Title, &s.Body, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get script %q: %w", id, err)
	}
	return &s, nil
}

// Put implements [Store] with an upsert.
func (p *Postgres) Put(ctx context.Context, s *Script) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO scripts (id, title, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
			SET title = EXCLUDED.title, body = EXCLUDED.body, updated_at = now()
		RETURNING created_at, updated_at`,
		s.ID, s.Title, s.Body)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("store: put script %q: %w", s.ID, err)
	}
	return nil
}

// Delete implements [Store].
func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete script %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements [Store].
func (p *Postgres) List(ctx context.Context) ([]*Script, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, body, created_at, updated_at FROM scripts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list scripts: %w", err)
	}
	defer rows.Close()

	var out []*Script
	for rows.Next() {
		var s Script
		if err := rows.Scan(&s.ID, &s.Title, &s.Body, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan script row: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate script rows: %w", err)
	}
	return out, nil
}

// Close implements [Store].
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ensure Postgres implements Store at compile time.
var _ Store = (*Postgres)(nil)
