// Package session wires the tracking pipeline together: transcripts from a
// speech provider flow through windowing, candidate matching, and the
// position tracker, and confirmed advances are handed to the motion
// controller. A Session is the unit a display connects to.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/autocue/internal/config"
	"github.com/MrWong99/autocue/internal/match"
	"github.com/MrWong99/autocue/internal/motion"
	"github.com/MrWong99/autocue/internal/observe"
	"github.com/MrWong99/autocue/internal/script"
	"github.com/MrWong99/autocue/internal/track"
	"github.com/MrWong99/autocue/pkg/provider/stt"
)

// Update describes the outcome of processing one transcript. Listeners
// receive it after the tracker and motion controller have been updated.
type Update struct {
	// Text is the raw transcript that was processed.
	Text string

	// IsFinal reports whether the transcript was a final result.
	IsFinal bool

	// Action is the tracker's decision for this transcript.
	Action track.Action

	// Position is the confirmed position after processing.
	Position int

	// PrevPosition is the confirmed position before processing.
	PrevPosition int

	// HighlightStart and HighlightEnd are byte offsets of the matched span
	// in the raw script. Both are -1 when nothing matched.
	HighlightStart int
	HighlightEnd   int

	// Score is the best candidate's combined score, or 0 when none matched.
	Score float64

	// ConsecutiveCount and RequiredCount describe confirmation progress
	// while the tracker is exploring a distant candidate.
	ConsecutiveCount int
	RequiredCount    int
}

// Listener receives pipeline updates. Listeners are called synchronously
// from the transcript-processing goroutine and must return quickly.
type Listener func(Update)

// Session owns one script's tracking pipeline. All exported methods are safe
// for concurrent use.
type Session struct {
	id      string
	index   *script.Index
	tracker *track.Tracker
	ctrl    *motion.Controller
	metrics *observe.Metrics

	mu            sync.Mutex
	matchOpts     match.Options
	windowSize    int
	minInterim    time.Duration
	skipThreshold int
	lastInterim   time.Time
	listeners     []Listener

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Session for the given script index and viewport. tuning
// should already have defaults applied. ctrlOpts are forwarded to the motion
// controller, letting the caller hook offset and state callbacks.
func New(id string, ix *script.Index, vp motion.Viewport, tuning config.Tuning, metrics *observe.Metrics, ctrlOpts ...motion.Option) *Session {
	s := &Session{
		id:            id,
		index:         ix,
		metrics:       metrics,
		matchOpts:     matchOptions(tuning),
		windowSize:    tuning.WindowSize,
		minInterim:    tuning.MinInterimInterval,
		skipThreshold: tuning.SkipThreshold,
		now:           time.Now,
	}
	s.tracker = track.New(trackOptions(tuning))
	s.ctrl = motion.New(s.tracker.Confirmed, vp, motionOptions(tuning), ctrlOpts...)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Index returns the session's script index.
func (s *Session) Index() *script.Index { return s.index }

// Controller returns the motion controller driving the session's display.
func (s *Session) Controller() *motion.Controller { return s.ctrl }

// Position returns the current confirmed position.
func (s *Session) Position() int { return s.tracker.Confirmed() }

// Subscribe registers a listener for pipeline updates.
func (s *Session) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start launches the motion controller's frame loop. It returns immediately.
func (s *Session) Start(ctx context.Context) {
	s.ctrl.Start(ctx)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}
}

// Stop halts the frame loop and waits for it to exit.
func (s *Session) Stop() {
	s.ctrl.Stop()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// Reset rewinds the session to the top of the script.
func (s *Session) Reset() {
	s.tracker.Reset()
	s.ctrl.Reset()
	s.mu.Lock()
	s.lastInterim = time.Time{}
	s.mu.Unlock()
}

// SetTuning applies new tuning values to a running session. Positions and
// scroll state are preserved.
func (s *Session) SetTuning(tuning config.Tuning) {
	s.tracker.SetOptions(trackOptions(tuning))
	s.ctrl.SetOptions(motionOptions(tuning))
	s.mu.Lock()
	s.matchOpts = matchOptions(tuning)
	s.windowSize = tuning.WindowSize
	s.minInterim = tuning.MinInterimInterval
	s.skipThreshold = tuning.SkipThreshold
	s.mu.Unlock()
}

// HandleTranscript runs one transcript through the pipeline. It returns the
// resulting Update and true when the transcript was processed, or a zero
// Update and false when it was throttled or too short to match.
//
// Interim transcripts arriving faster than the configured minimum interval
// are dropped; final transcripts are always processed.
func (s *Session) HandleTranscript(ctx context.Context, text string, isFinal bool) (Update, bool) {
	if s.metrics != nil {
		s.metrics.RecordTranscript(ctx, isFinal)
	}

	s.mu.Lock()
	opts := s.matchOpts
	windowSize := s.windowSize
	skipThreshold := s.skipThreshold
	if !isFinal {
		now := s.now()
		if now.Sub(s.lastInterim) < s.minInterim {
			s.mu.Unlock()
			return Update{}, false
		}
		s.lastInterim = now
	}
	s.mu.Unlock()

	window := script.Window(text, windowSize)
	if len(window) < opts.MinConsecutive {
		return Update{}, false
	}

	prev := s.tracker.Confirmed()

	matchStart := s.now()
	res := match.Find(window, s.index, prev, opts)
	if s.metrics != nil {
		s.metrics.MatchDuration.Record(ctx, s.now().Sub(matchStart).Seconds())
	}

	tr := s.tracker.ProcessMatch(res.Best)
	if s.metrics != nil {
		s.metrics.RecordTrackerDecision(ctx, string(tr.Action))
	}

	u := Update{
		Text:             text,
		IsFinal:          isFinal,
		Action:           tr.Action,
		Position:         tr.ConfirmedPosition,
		PrevPosition:     prev,
		HighlightStart:   -1,
		HighlightEnd:     -1,
		ConsecutiveCount: tr.ConsecutiveCount,
		RequiredCount:    tr.RequiredCount,
	}
	if res.Best != nil {
		u.Score = res.Best.CombinedScore
		// Spans are only published for confirmed advances: an exploring
		// candidate may still be a false match ahead of the confirmed floor.
		if tr.Action == track.ActionAdvanced {
			u.HighlightStart = res.Best.StartOffset
			u.HighlightEnd = res.Best.EndOffset
		}
	}

	if tr.Action == track.ActionAdvanced {
		s.ctrl.OnPositionAdvanced(tr.ConfirmedPosition, prev)
		if jump := tr.ConfirmedPosition - prev; jump > skipThreshold {
			if s.metrics != nil {
				s.metrics.Skips.Add(ctx, 1,
					metric.WithAttributes(attribute.String("direction", "forward")))
			}
			slog.Debug("skip detected",
				slog.String("session_id", s.id),
				slog.Int("from", prev),
				slog.Int("to", tr.ConfirmedPosition))
		}
	}

	s.notify(u)
	return u, true
}

// Pump consumes transcripts from an open provider session until both
// channels close or ctx is cancelled. It does not close the handle.
func (s *Session) Pump(ctx context.Context, handle stt.SessionHandle) error {
	partials := handle.Partials()
	finals := handle.Finals()

	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.HandleTranscript(ctx, t.Text, false)

		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.HandleTranscript(ctx, t.Text, true)
		}
	}
	return nil
}

// notify delivers u to all listeners registered at the time of the call.
func (s *Session) notify(u Update) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}

// matchOptions maps config tuning to matcher options.
func matchOptions(t config.Tuning) match.Options {
	return match.Options{
		Radius:         t.Radius,
		MinConsecutive: t.MinConsecutive,
		DistanceWeight: t.DistanceWeight,
		WordThreshold:  t.WordThreshold,
	}
}

// trackOptions maps config tuning to tracker options.
func trackOptions(t config.Tuning) track.Options {
	return track.Options{
		ConfidenceThreshold:  t.ConfidenceThreshold,
		NearbyThreshold:      t.NearbyThreshold,
		LargeSkipDistance:    t.LargeSkipDistance,
		SmallSkipConsecutive: t.SmallSkipConsecutive,
		LargeSkipConsecutive: t.LargeSkipConsecutive,
		GapTolerance:         t.GapTolerance,
	}
}

// motionOptions maps config tuning to motion controller options.
func motionOptions(t config.Tuning) motion.Options {
	return motion.Options{
		CaretPercent:       t.CaretPercent,
		HoldTimeout:        t.HoldTimeout,
		SyncDeadband:       t.SyncDeadbandPx,
		CorrectionGain:     t.CorrectionGain,
		MaxCorrectionSpeed: t.MaxCorrectionSpeedPx,
		CatchUpMultiplier:  t.CatchUpMultiplier,
		SkipThreshold:      t.SkipThreshold,
		PaceMultiplier:     t.PaceMultiplier,
		MinPace:            t.MinPace,
		MaxPace:            t.MaxPace,
	}
}
