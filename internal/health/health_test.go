package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return rec.Code, body
}

func pass(_ context.Context) error { return nil }

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "store", Check: func(_ context.Context) error {
		return errors.New("down")
	}})

	code, body := serve(t, h, "/healthz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 even with failing checkers", code)
	}
	if body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
}

func TestHealthzContentType(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyzReady(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "store", Check: pass},
		Checker{Name: "stt", Check: pass},
	)

	code, body := serve(t, h, "/readyz")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
	for _, name := range []string{"store", "stt"} {
		if body.Checks[name] != "ok" {
			t.Errorf("check %q = %q, want ok", name, body.Checks[name])
		}
	}
}

func TestReadyzSingleFailureMakesUnready(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "store", Check: func(_ context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "stt", Check: pass},
	)

	code, body := serve(t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if body.Status != "fail" {
		t.Errorf("body status = %q, want fail", body.Status)
	}
	if body.Checks["store"] != "fail: connection refused" {
		t.Errorf("store check = %q", body.Checks["store"])
	}
	if body.Checks["stt"] != "ok" {
		t.Errorf("stt check = %q, want ok (independent of store)", body.Checks["stt"])
	}
}

func TestReadyzNoCheckers(t *testing.T) {
	t.Parallel()

	code, body := serve(t, New(), "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no checkers", code)
	}
	if body.Status != "ok" {
		t.Errorf("body status = %q, want ok", body.Status)
	}
}

func TestReadyzPropagatesRequestCancellation(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when the request context is gone", rec.Code)
	}
}
