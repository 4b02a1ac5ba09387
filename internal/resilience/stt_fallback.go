package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/autocue/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across several speech
// backends when opening a stream. Each backend sits behind its own circuit
// breaker, so a provider whose stream setup keeps failing is skipped without
// delaying the session start.
//
// Failover applies to StartStream only. Once a stream is open, transcripts
// flow from whichever backend won; a mid-stream failure surfaces to the
// caller as closed channels, and it is the caller's job to start a new
// stream (which fails over again).
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
	names []string
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		names: []string{primaryName},
	}
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
	f.names = append(f.names, name)
}

// Names returns the backend names in failover order.
func (f *STTFallback) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// StartStream opens a transcription stream on the first healthy backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	handle, err := ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	if err != nil {
		slog.Error("no speech backend could open a stream", "backends", f.names, "error", err)
		return nil, err
	}
	return handle, nil
}
