package resilience

import (
	"errors"
	"testing"

	"github.com/MrWong99/autocue/pkg/provider/stt"
	sttmock "github.com/MrWong99/autocue/pkg/provider/stt/mock"
)

func newSTTFallbackPair(primary, secondary stt.Provider) *STTFallback {
	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)
	return fb
}

func TestSTTFallbackPrefersPrimary(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Session: sttmock.NewSession()}
	secondary := &sttmock.Provider{}
	fb := newSTTFallbackPair(primary, secondary)

	handle, err := fb.StartStream(t.Context(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer handle.Close()

	if got := len(primary.StartStreamCalls); got != 1 {
		t.Errorf("primary StartStream calls = %d, want 1", got)
	}
	if got := len(secondary.StartStreamCalls); got != 0 {
		t.Errorf("secondary StartStream calls = %d, want 0", got)
	}
}

func TestSTTFallbackFailsOverToSecondary(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{StartStreamErr: errors.New("deepgram unreachable")}
	secondary := &sttmock.Provider{Session: sttmock.NewSession()}
	fb := newSTTFallbackPair(primary, secondary)

	handle, err := fb.StartStream(t.Context(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer handle.Close()

	if got := len(secondary.StartStreamCalls); got != 1 {
		t.Errorf("secondary StartStream calls = %d, want 1", got)
	}
}

func TestSTTFallbackAllBackendsDown(t *testing.T) {
	t.Parallel()

	fb := newSTTFallbackPair(
		&sttmock.Provider{StartStreamErr: errors.New("deepgram unreachable")},
		&sttmock.Provider{StartStreamErr: errors.New("whisper-server not running")},
	)

	_, err := fb.StartStream(t.Context(), stt.StreamConfig{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallbackNames(t *testing.T) {
	t.Parallel()

	fb := newSTTFallbackPair(&sttmock.Provider{}, &sttmock.Provider{})
	got := fb.Names()
	if len(got) != 2 || got[0] != "deepgram" || got[1] != "whisper" {
		t.Fatalf("Names() = %v, want [deepgram whisper]", got)
	}
}
