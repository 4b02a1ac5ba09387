// Package motion converts confirmed-position events into smooth, speech-paced
// scrolling.
//
// A [Controller] runs a per-frame update independent of transcript events. It
// keeps an internal display position that glides toward the confirmed
// position — fast enough never to accumulate unbounded lag, slow enough never
// to stair-step on bursty confirmations — maps it to an expected scroll
// offset, and closes the remaining offset error with a smoothed proportional
// correction. The model is velocity-based rather than target-chasing: during
// normal speech the baseline motion comes from the estimated speaking pace,
// not from the error term.
//
// The controller only ever reads the tracker's confirmed position through a
// snapshot function; it never calls into the matcher.
package motion

import (
	"context"
	"math"
	"sync"
	"time"
)

// State tags the controller's externally visible mode.
type State string

const (
	// StateTracking means advances are arriving and the view follows speech.
	StateTracking State = "tracking"

	// StateHolding means no advance has arrived for HoldTimeout; scrolling
	// has effectively stopped. Any advance resumes tracking automatically.
	StateHolding State = "holding"

	// StateStopped means the frame loop is not running.
	StateStopped State = "stopped"
)

// Defaults for [Options].
const (
	DefaultCaretPercent       = 0.33
	DefaultHoldTimeout        = 5 * time.Second
	DefaultSyncDeadband       = 3.0
	DefaultCorrectionGain     = 1.5
	DefaultMaxCorrectionSpeed = 300.0
	DefaultSmoothingRate      = 6.0
	DefaultCatchUpGain        = 2.0
	DefaultCatchUpMultiplier  = 3.0
	DefaultPaceMultiplier     = 1.0
	DefaultMinPace            = 0.5
	DefaultMaxPace            = 5.0
	DefaultInitialPace        = 2.0
	DefaultSkipThreshold      = 10
	DefaultFrameInterval      = 16 * time.Millisecond

	// paceGapMax is the advance-to-advance gap beyond which the interval is
	// treated as a pause rather than a speed signal.
	paceGapMax = 5 * time.Second

	// snapFraction is how far the display position jumps toward a skip
	// target when catch-up mode starts. Never 1 — a full snap would be a
	// visible jump-cut.
	snapFraction = 0.5
)

// Options tunes the motion model. Zero values fall back to the defaults.
type Options struct {
	// CaretPercent is the fraction of viewport height where the next word to
	// speak should sit. Default 0.33.
	CaretPercent float64

	// HoldTimeout is how long without an advance before entering
	// [StateHolding]. Default 5s.
	HoldTimeout time.Duration

	// SyncDeadband is the offset error (px) below which no correction is
	// applied, preventing micro-jitter. Default 3.
	SyncDeadband float64

	// CorrectionGain is the proportional gain (1/s) applied to offset error.
	CorrectionGain float64

	// MaxCorrectionSpeed clamps the correction term (px/s). Default 300.
	MaxCorrectionSpeed float64

	// SmoothingRate is the exponential smoothing rate (1/s) for the
	// correction term; the per-frame factor is 1−e^(−rate·dt), making the
	// smoothing frame-rate independent. Default 6.
	SmoothingRate float64

	// CatchUpGain is the proportional gain (1/s) pulling the display
	// position toward the confirmed position. Default 2.
	CatchUpGain float64

	// CatchUpMultiplier scales the base speed while catching up after a
	// skip. Default 3.
	CatchUpMultiplier float64

	// PaceMultiplier scales the pace-derived baseline advance of the
	// display position. Default 1.
	PaceMultiplier float64

	// MinPace and MaxPace clamp instantaneous pace samples (words/s).
	// Defaults 0.5 and 5.
	MinPace float64
	MaxPace float64

	// SkipThreshold is the advance delta (words) above which catch-up mode
	// starts. Default 10.
	SkipThreshold int

	// FrameInterval is the frame loop period. Default 16ms (~60 fps).
	FrameInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.CaretPercent <= 0 || o.CaretPercent >= 1 {
		o.CaretPercent = DefaultCaretPercent
	}
	if o.HoldTimeout <= 0 {
		o.HoldTimeout = DefaultHoldTimeout
	}
	if o.SyncDeadband <= 0 {
		o.SyncDeadband = DefaultSyncDeadband
	}
	if o.CorrectionGain <= 0 {
		o.CorrectionGain = DefaultCorrectionGain
	}
	if o.MaxCorrectionSpeed <= 0 {
		o.MaxCorrectionSpeed = DefaultMaxCorrectionSpeed
	}
	if o.SmoothingRate <= 0 {
		o.SmoothingRate = DefaultSmoothingRate
	}
	if o.CatchUpGain <= 0 {
		o.CatchUpGain = DefaultCatchUpGain
	}
	if o.CatchUpMultiplier <= 0 {
		o.CatchUpMultiplier = DefaultCatchUpMultiplier
	}
	if o.PaceMultiplier <= 0 {
		o.PaceMultiplier = DefaultPaceMultiplier
	}
	if o.MinPace <= 0 {
		o.MinPace = DefaultMinPace
	}
	if o.MaxPace <= 0 {
		o.MaxPace = DefaultMaxPace
	}
	if o.SkipThreshold <= 0 {
		o.SkipThreshold = DefaultSkipThreshold
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	return o
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithClock overrides the time source. Tests use this together with [Controller.Step]
// to drive the controller deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithOffsetFunc sets the per-frame sink for the computed scroll offset.
func WithOffsetFunc(fn func(offset float64)) Option {
	return func(c *Controller) {
		c.onOffset = fn
	}
}

// WithStateFunc sets the callback invoked on every state transition.
func WithStateFunc(fn func(State)) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}

// Controller is the frame-driven motion stage. All exported methods are safe
// for concurrent use.
type Controller struct {
	mu        sync.Mutex
	opts      Options
	vp        Viewport
	confirmed func() int
	now       func() time.Time
	onOffset  func(float64)
	onState   func(State)

	displayPos         float64
	offset             float64
	pace               float64
	smoothedCorrection float64
	catchingUp         bool
	state              State
	lastAdvance        time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Controller that follows the position reported by confirmed
// and maps it through vp. The controller is stopped until [Controller.Start]
// is called.
func New(confirmed func() int, vp Viewport, opts Options, fnOpts ...Option) *Controller {
	c := &Controller{
		opts:      opts.withDefaults(),
		vp:        vp,
		confirmed: confirmed,
		now:       time.Now,
		pace:      DefaultInitialPace,
		state:     StateStopped,
	}
	for _, o := range fnOpts {
		o(c)
	}
	c.lastAdvance = c.now()
	return c
}

// Start launches the frame loop. It returns immediately; the loop runs until
// ctx is cancelled or [Controller.Stop] is called. Starting an already
// running controller is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.lastAdvance = c.now()
	c.setStateLocked(StateTracking)
	interval := c.opts.FrameInterval
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := c.now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := c.now()
				c.Step(now.Sub(last))
				last = now
			}
		}
	}()
}

// Stop cancels the frame timer and waits for the loop to exit. Tracker state
// is untouched — pause/resume must not lose position. Stopping a stopped
// controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.setStateLocked(StateStopped)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Reset returns all derived motion state to its initial values. Called
// together with the tracker's Reset at session restart.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayPos = 0
	c.offset = 0
	c.pace = DefaultInitialPace
	c.smoothedCorrection = 0
	c.catchingUp = false
	c.lastAdvance = c.now()
}

// SetOptions replaces the tuning options while preserving motion state, so a
// live re-tune never jumps the view. A changed FrameInterval takes effect on
// the next Start.
func (c *Controller) SetOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts.withDefaults()
}

// SetCaretPercent moves the caret line to percent of the viewport height.
// Values outside (0, 1) are ignored.
func (c *Controller) SetCaretPercent(percent float64) {
	if percent <= 0 || percent >= 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.CaretPercent = percent
}

// SetViewport replaces the viewport geometry, e.g. after the display client
// reports a resize.
func (c *Controller) SetViewport(vp Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vp = vp
}

// OnPositionAdvanced is the sole event-driven entry point. The session calls
// it after every confirmed advance with the new and previous positions. It
// folds the event into the pace estimate and arms catch-up mode when the
// delta is large enough to be a skip.
func (c *Controller) OnPositionAdvanced(newPos, prevPos int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	gap := now.Sub(c.lastAdvance)

	// Pace update. Gaps above paceGapMax indicate a pause, not a slow
	// speaker, and are ignored. The 70/30 blend is deliberately sluggish so
	// recognition bursts don't become visible speed spikes.
	if delta := newPos - prevPos; delta > 0 && gap > 0 && gap <= paceGapMax {
		inst := float64(delta) / gap.Seconds()
		if inst < c.opts.MinPace {
			inst = c.opts.MinPace
		}
		if inst > c.opts.MaxPace {
			inst = c.opts.MaxPace
		}
		c.pace = 0.7*c.pace + 0.3*inst
	}

	if newPos-prevPos > c.opts.SkipThreshold {
		c.catchingUp = true
		// Snap partway toward the new position so the catch-up run starts
		// from a plausible spot without a visible jump.
		if target := float64(newPos); target > c.displayPos {
			c.displayPos += (target - c.displayPos) * snapFraction
		}
	}

	c.lastAdvance = now
	if c.state == StateHolding {
		c.setStateLocked(StateTracking)
	}
}

// Step advances the motion model by dt. The frame loop calls it once per
// tick; tests call it directly with a fake clock.
func (c *Controller) Step(dt time.Duration) {
	if dt <= 0 {
		return
	}
	c.mu.Lock()

	sec := dt.Seconds()
	target := float64(c.confirmed())

	// 1. Glide the display position toward the confirmed position. The
	// pace term keeps steady baseline motion during normal speech; the
	// proportional term prevents unbounded lag after a confirmation burst.
	// Never past the target, never backward.
	if remaining := target - c.displayPos; remaining > 0 {
		adv := c.pace * c.opts.PaceMultiplier * sec
		if p := remaining * c.opts.CatchUpGain * sec; p > adv {
			adv = p
		}
		if adv > remaining {
			adv = remaining
		}
		c.displayPos += adv
	}

	// 2. Map to the expected offset and measure the error.
	expected := c.vp.OffsetFor(c.displayPos, c.opts.CaretPercent)
	err := expected - c.offset

	// 3. Proportional correction outside the deadband, exponentially
	// smoothed with a time-constant factor so the result is frame-rate
	// independent.
	var correction float64
	if math.Abs(err) > c.opts.SyncDeadband {
		correction = err * c.opts.CorrectionGain
		if correction > c.opts.MaxCorrectionSpeed {
			correction = c.opts.MaxCorrectionSpeed
		}
		if correction < -c.opts.MaxCorrectionSpeed {
			correction = -c.opts.MaxCorrectionSpeed
		}
	}
	alpha := 1 - math.Exp(-c.opts.SmoothingRate*sec)
	c.smoothedCorrection += alpha * (correction - c.smoothedCorrection)

	// 4. Base speed from speaking pace, boosted while catching up, applies
	// only while the display position is still moving — otherwise the view
	// would scroll past what has been said.
	var base float64
	if c.displayPos < target || err > c.opts.SyncDeadband {
		base = c.pace * c.vp.PxPerWord
		if c.catchingUp {
			base *= c.opts.CatchUpMultiplier
		}
	}

	c.offset += (base + c.smoothedCorrection) * sec

	// Clamp: never below zero, never past the confirmed position's mapped
	// offset, never past the end of the content.
	ceiling := c.vp.OffsetFor(target, c.opts.CaretPercent)
	if c.offset > ceiling {
		c.offset = ceiling
	}
	if c.offset < 0 {
		c.offset = 0
	}

	// 5. Catch-up exits on its own once the gap is closed.
	if c.catchingUp && math.Abs(ceiling-c.offset) < 2*c.opts.SyncDeadband {
		c.catchingUp = false
	}

	// Hold detection: silence stops the view.
	if c.state == StateTracking && c.now().Sub(c.lastAdvance) > c.opts.HoldTimeout {
		c.setStateLocked(StateHolding)
	}

	offset := c.offset
	sink := c.onOffset
	c.mu.Unlock()

	if sink != nil {
		sink(offset)
	}
}

// setStateLocked transitions the state and fires the callback on its own
// goroutine so a callback that re-enters the controller cannot deadlock.
// Must be called with c.mu held.
func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		go c.onState(s)
	}
}

// Offset returns the current scroll offset.
func (c *Controller) Offset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// DisplayPosition returns the smoothed display position.
func (c *Controller) DisplayPosition() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayPos
}

// Pace returns the current speaking-pace estimate in words per second.
func (c *Controller) Pace() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pace
}

// CatchingUp reports whether catch-up mode is active.
func (c *Controller) CatchingUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catchingUp
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
