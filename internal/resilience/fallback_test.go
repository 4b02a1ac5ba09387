package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(maxFailures int, resetTimeout time.Duration) *FallbackGroup[string] {
	fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  maxFailures,
			ResetTimeout: resetTimeout,
		},
	})
	fg.AddFallback("whisper", "whisper")
	return fg
}

func TestFallbackGroupUsesPrimaryFirst(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, 0)
	var used string
	if err := fg.Execute(func(v string) error { used = v; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "deepgram" {
		t.Fatalf("used = %q, want deepgram", used)
	}
}

func TestFallbackGroupFailsOverOnError(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, 0)
	var used string
	err := fg.Execute(func(v string) error {
		if v == "deepgram" {
			return errStreamFailed
		}
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "whisper" {
		t.Fatalf("used = %q, want whisper", used)
	}
}

func TestFallbackGroupAllFail(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, 0)
	err := fg.Execute(func(string) error { return errStreamFailed })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(2, time.Hour)

	// Trip the primary's breaker; the fallback keeps the calls succeeding.
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "deepgram" {
				return errStreamFailed
			}
			return nil
		})
	}

	var attempts []string
	if err := fg.Execute(func(v string) error {
		attempts = append(attempts, v)
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "whisper" {
		t.Fatalf("attempts = %v, want only whisper (primary circuit open)", attempts)
	}
}

func TestExecuteWithResultReturnsPrimaryValue(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, 0)
	got, err := ExecuteWithResult(fg, func(v string) (int, error) {
		if v == "deepgram" {
			return 1, nil
		}
		return 2, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 1 {
		t.Fatalf("result = %d, want 1", got)
	}
}

func TestExecuteWithResultFailsOver(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, 0)
	got, err := ExecuteWithResult(fg, func(v string) (int, error) {
		if v == "deepgram" {
			return 0, errStreamFailed
		}
		return 2, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 2 {
		t.Fatalf("result = %d, want 2", got)
	}
}

func TestExecuteWithResultAllFail(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("only", "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	_, err := ExecuteWithResult(fg, func(string) (int, error) {
		return 0, errStreamFailed
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
