// Package web serves the display-facing HTTP surface: a websocket feed that
// streams scroll frames and match highlights to prompter displays, and a
// small JSON API for managing stored scripts.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/autocue/internal/motion"
	"github.com/MrWong99/autocue/internal/observe"
	"github.com/MrWong99/autocue/internal/session"
	"github.com/MrWong99/autocue/internal/store"
	"github.com/MrWong99/autocue/internal/track"
)

// writeTimeout bounds a single websocket write to a display.
const writeTimeout = 5 * time.Second

// clientBuffer is the per-client outbound queue length. Frames for a client
// that cannot keep up are dropped rather than stalling the broadcast.
const clientBuffer = 64

// Service is the HTTP/websocket surface of a prompter session.
// All exported methods are safe for concurrent use.
type Service struct {
	store   store.Store
	metrics *observe.Metrics

	mu      sync.Mutex
	sess    *session.Session
	clients map[*client]struct{}

	// audioSink receives binary PCM frames from the capture websocket.
	audioSink func([]byte) error
}

type client struct {
	send chan []byte
}

// NewService creates a Service backed by the given script store.
func NewService(st store.Store, metrics *observe.Metrics) *Service {
	return &Service{
		store:   st,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Attach binds the service to a session and subscribes to its pipeline
// updates. Call it once during startup, before serving requests.
func (s *Service) Attach(sess *session.Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	sess.Subscribe(s.onUpdate)
}

// SetAudioSink wires the destination for audio received on /ws/audio,
// typically the STT session's SendAudio. Frames arriving while no sink is
// set are dropped.
func (s *Service) SetAudioSink(sink func([]byte) error) {
	s.mu.Lock()
	s.audioSink = sink
	s.mu.Unlock()
}

// Register adds all service routes to mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/audio", s.handleAudioWS)
	mux.HandleFunc("GET /api/scripts", s.handleListScripts)
	mux.HandleFunc("GET /api/scripts/{id}", s.handleGetScript)
	mux.HandleFunc("PUT /api/scripts/{id}", s.handlePutScript)
	mux.HandleFunc("DELETE /api/scripts/{id}", s.handleDeleteScript)
}

// PushOffset is wired as the motion controller's offset callback. It fans
// the current frame out to every connected display.
func (s *Service) PushOffset(offset float64) {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return
	}
	ctrl := sess.Controller()
	s.broadcast(FrameMessage{
		Type:            TypeFrame,
		Offset:          offset,
		DisplayPosition: ctrl.DisplayPosition(),
		Position:        sess.Position(),
		Pace:            ctrl.Pace(),
		CatchingUp:      ctrl.CatchingUp(),
	})
}

// PushState is wired as the motion controller's state callback.
func (s *Service) PushState(st motion.State) {
	s.broadcast(StateMessage{Type: TypeState, State: string(st)})
}

// onUpdate receives pipeline updates and forwards match highlights.
func (s *Service) onUpdate(u session.Update) {
	if u.Action != track.ActionAdvanced || u.HighlightStart < 0 {
		return
	}
	s.broadcast(HighlightMessage{
		Type:     TypeHighlight,
		Start:    u.HighlightStart,
		End:      u.HighlightEnd,
		Position: u.Position,
		Action:   string(u.Action),
	})
}

// broadcast marshals v once and queues it to every connected client,
// dropping it for clients whose queue is full.
func (s *Service) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal broadcast message", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// handleWS upgrades the connection and serves the display feed until the
// client disconnects.
func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server shutting down")

	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		conn.Close(websocket.StatusTryAgainLater, "no active session")
		return
	}

	c := &client{send: make(chan []byte, clientBuffer)}
	s.addClient(r.Context(), c)
	defer s.removeClient(c)

	// Initial snapshot so the display can render before the first frame.
	snapshot, err := json.Marshal(ScriptMessage{
		Type:      TypeScript,
		SessionID: sess.ID(),
		Text:      sess.Index().Raw(),
		WordCount: sess.Index().Len(),
	})
	if err != nil {
		slog.Error("marshal script snapshot", "error", err)
		return
	}

	ctx := r.Context()
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- s.writeLoop(ctx, conn, snapshot, c)
	}()

	s.readLoop(ctx, conn, sess)

	conn.Close(websocket.StatusNormalClosure, "")
	<-writeErr
}

// writeLoop drains the client queue onto the websocket.
func (s *Service) writeLoop(ctx context.Context, conn *websocket.Conn, snapshot []byte, c *client) error {
	write := func(data []byte) error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return conn.Write(wctx, websocket.MessageText, data)
	}

	if err := write(snapshot); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.send:
			if err := write(data); err != nil {
				return err
			}
		}
	}
}

// readLoop consumes client commands until the connection drops.
func (s *Service) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Debug("ignoring malformed client command", "error", err)
			continue
		}
		switch cmd.Type {
		case "reset":
			slog.Info("display requested reset", "session_id", sess.ID())
			sess.Reset()
		default:
			slog.Debug("ignoring unknown client command", "type", cmd.Type)
		}
	}
}

// handleAudioWS receives binary PCM frames from a capture client and
// forwards them to the configured audio sink.
func (s *Service) handleAudioWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("audio websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server shutting down")

	slog.Info("audio capture connected")
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			slog.Info("audio capture disconnected", "error", err)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		s.mu.Lock()
		sink := s.audioSink
		s.mu.Unlock()
		if sink == nil {
			continue
		}
		if err := sink(data); err != nil {
			slog.Warn("audio sink rejected frame", "error", err)
			conn.Close(websocket.StatusTryAgainLater, "transcription unavailable")
			return
		}
	}
}

func (s *Service) addClient(ctx context.Context, c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.DisplayClients.Add(ctx, 1)
	}
	slog.Info("display connected", "clients", n)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.DisplayClients.Add(context.Background(), -1)
	}
	slog.Info("display disconnected", "clients", n)
}

// ClientCount returns the number of connected displays.
func (s *Service) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// scriptPayload is the JSON body for script create and read responses.
type scriptPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func (s *Service) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.store.List(r.Context())
	if err != nil {
		http.Error(w, "list scripts failed", http.StatusInternalServerError)
		return
	}
	out := make([]scriptPayload, 0, len(scripts))
	for _, sc := range scripts {
		out = append(out, scriptPayload{
			ID:        sc.ID,
			Title:     sc.Title,
			Body:      sc.Body,
			CreatedAt: sc.CreatedAt,
			UpdatedAt: sc.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleGetScript(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "script not found", http.StatusNotFound)
			return
		}
		http.Error(w, "get script failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scriptPayload{
		ID:        sc.ID,
		Title:     sc.Title,
		Body:      sc.Body,
		CreatedAt: sc.CreatedAt,
		UpdatedAt: sc.UpdatedAt,
	})
}

func (s *Service) handlePutScript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	var in scriptPayload
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "malformed JSON body", http.StatusBadRequest)
		return
	}
	if in.Body == "" {
		http.Error(w, "script body must not be empty", http.StatusBadRequest)
		return
	}

	sc := &store.Script{
		ID:    r.PathValue("id"),
		Title: in.Title,
		Body:  in.Body,
	}
	if err := s.store.Put(r.Context(), sc); err != nil {
		http.Error(w, "store script failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scriptPayload{
		ID:        sc.ID,
		Title:     sc.Title,
		Body:      sc.Body,
		CreatedAt: sc.CreatedAt,
		UpdatedAt: sc.UpdatedAt,
	})
}

func (s *Service) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "script not found", http.StatusNotFound)
			return
		}
		http.Error(w, "delete script failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode JSON response", "error", err)
	}
}
