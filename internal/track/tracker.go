// Package track maintains the single authoritative "where the speaker is"
// position of the tracking pipeline.
//
// A [Tracker] consumes one best-ranked [match.Candidate] per transcript event
// and decides whether to accept it as the new confirmed position. The
// confirmed position is a monotonically non-decreasing floor: backward and
// lateral candidates are ignored regardless of score, and the farther ahead a
// candidate lies, the more consecutive corroborating matches are demanded
// before it is trusted. That escalation is the defense against a single
// repeated phrase far from the true position masquerading as a skip.
package track

import (
	"sync"

	"github.com/MrWong99/autocue/internal/match"
)

// Action tags the outcome of one [Tracker.ProcessMatch] call.
type Action string

const (
	// ActionAdvanced means the confirmed position moved forward.
	ActionAdvanced Action = "advanced"

	// ActionHold means nothing changed: no candidate, low confidence,
	// or a backward match.
	ActionHold Action = "hold"

	// ActionExploring means a forward candidate is being corroborated but
	// has not yet accumulated the required consecutive matches.
	ActionExploring Action = "exploring"
)

// Defaults for [Options].
const (
	DefaultConfidenceThreshold  = 0.7
	DefaultNearbyThreshold      = 10
	DefaultLargeSkipDistance    = 50
	DefaultSmallSkipConsecutive = 4
	DefaultLargeSkipConsecutive = 5
	DefaultGapTolerance         = 2
)

// Options tunes the confirmation policy. The consecutive-match thresholds are
// heuristics, not derived constants — treat them as configuration.
type Options struct {
	// ConfidenceThreshold is the minimum candidate CombinedScore considered
	// at all. Default 0.7.
	ConfidenceThreshold float64

	// NearbyThreshold is the distance (in words) up to which a single
	// high-confidence match advances immediately. Default 10.
	NearbyThreshold int

	// LargeSkipDistance separates small skips from large ones. Default 50.
	LargeSkipDistance int

	// SmallSkipConsecutive is the streak length required to confirm a skip
	// of NearbyThreshold < distance <= LargeSkipDistance words. Default 4.
	SmallSkipConsecutive int

	// LargeSkipConsecutive is the streak length required to confirm a skip
	// beyond LargeSkipDistance words. Default 5.
	LargeSkipConsecutive int

	// GapTolerance is how many words a new match's start may trail or lead
	// the previous match's end while still counting as consecutive. Filler
	// filtering routinely opens gaps of a word or two. Default 2.
	GapTolerance int
}

func (o Options) withDefaults() Options {
	if o.ConfidenceThreshold == 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.NearbyThreshold <= 0 {
		o.NearbyThreshold = DefaultNearbyThreshold
	}
	if o.LargeSkipDistance <= 0 {
		o.LargeSkipDistance = DefaultLargeSkipDistance
	}
	if o.SmallSkipConsecutive <= 0 {
		o.SmallSkipConsecutive = DefaultSmallSkipConsecutive
	}
	if o.LargeSkipConsecutive <= 0 {
		o.LargeSkipConsecutive = DefaultLargeSkipConsecutive
	}
	if o.GapTolerance <= 0 {
		o.GapTolerance = DefaultGapTolerance
	}
	return o
}

// Result is the tagged outcome of one ProcessMatch call. Tests and callers
// assert on the Action variant instead of poking at tracker internals.
type Result struct {
	Action            Action
	ConfirmedPosition int

	// CandidatePosition, ConsecutiveCount, and RequiredCount are meaningful
	// only when Action is [ActionExploring]. They let a caller render a
	// "confirming…" affordance.
	CandidatePosition int
	ConsecutiveCount  int
	RequiredCount     int
}

// Tracker holds the pipeline's only long-lived mutable state. All methods are
// safe for concurrent use; a single mutex guards the monotonic constraint so
// two transcript events can never race it.
type Tracker struct {
	mu   sync.Mutex
	opts Options

	confirmed    int
	candidate    int
	streak       int
	lastMatchEnd int
}

// New returns a Tracker starting at position 0 with the given options.
func New(opts Options) *Tracker {
	t := &Tracker{opts: opts.withDefaults()}
	t.resetLocked()
	return t
}

// Confirmed returns the current confirmed position. It is a read-only
// snapshot suitable for the frame-driven domain.
func (t *Tracker) Confirmed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmed
}

// Reset returns the tracker to position 0 and clears all streak bookkeeping.
// Pausing a session must NOT call Reset — position survives pause/resume.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.confirmed = 0
	t.candidate = -1
	t.streak = 0
	t.lastMatchEnd = -1
}

// SetOptions replaces the confirmation policy. In-flight streak bookkeeping
// is kept; the new thresholds apply from the next ProcessMatch call.
func (t *Tracker) SetOptions(opts Options) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts = opts.withDefaults()
}

// ProcessMatch applies the confirmation policy to c (which may be nil) and
// returns the tagged outcome. The confirmed position never decreases, no
// matter what c contains.
func (t *Tracker) ProcessMatch(c *match.Candidate) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c == nil || c.CombinedScore < t.opts.ConfidenceThreshold {
		return t.hold()
	}

	// Forward bias: backward or lateral matches are ignored silently. A
	// speaker re-reading an earlier line is far more likely than the
	// document rewinding underneath them.
	if c.Position <= t.confirmed {
		return t.hold()
	}

	distance := c.Position - t.confirmed
	required := t.requiredConsecutive(distance)

	if t.isConsecutive(c) {
		t.streak++
	} else {
		t.streak = 1
		t.candidate = c.Position
	}
	t.lastMatchEnd = c.Position

	if t.streak >= required {
		t.confirmed = c.Position
		t.candidate = -1
		t.streak = 0
		return Result{Action: ActionAdvanced, ConfirmedPosition: t.confirmed}
	}

	t.candidate = c.Position
	return Result{
		Action:            ActionExploring,
		ConfirmedPosition: t.confirmed,
		CandidatePosition: t.candidate,
		ConsecutiveCount:  t.streak,
		RequiredCount:     required,
	}
}

func (t *Tracker) hold() Result {
	return Result{Action: ActionHold, ConfirmedPosition: t.confirmed}
}

// requiredConsecutive returns the streak length needed to confirm a forward
// move of the given distance. Escalation is distance-scaled: the farther the
// candidate, the more corroboration is demanded.
func (t *Tracker) requiredConsecutive(distance int) int {
	switch {
	case distance <= t.opts.NearbyThreshold:
		return 1
	case distance <= t.opts.LargeSkipDistance:
		return t.opts.SmallSkipConsecutive
	default:
		return t.opts.LargeSkipConsecutive
	}
}

// isConsecutive reports whether c continues the current streak: its start
// must lie within GapTolerance words of the previous match's end, and it must
// not fall behind the previous match.
func (t *Tracker) isConsecutive(c *match.Candidate) bool {
	if t.streak == 0 || t.lastMatchEnd < 0 {
		return false
	}
	gap := c.StartPosition - t.lastMatchEnd
	return gap >= -t.opts.GapTolerance && gap <= t.opts.GapTolerance && c.Position >= t.lastMatchEnd
}
