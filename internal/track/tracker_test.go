package track_test

import (
	"testing"

	"github.com/MrWong99/autocue/internal/match"
	"github.com/MrWong99/autocue/internal/track"
)

// cand builds a high-confidence candidate ending at pos with the given
// window length.
func cand(pos, length int) *match.Candidate {
	return &match.Candidate{
		Position:      pos,
		StartPosition: pos - length + 1,
		MatchCount:    length,
		CombinedScore: 0.95,
	}
}

func TestProcessMatch_NearbyAdvancesImmediately(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})
	res := tr.ProcessMatch(cand(4, 3))

	if res.Action != track.ActionAdvanced {
		t.Fatalf("Action = %q, want %q", res.Action, track.ActionAdvanced)
	}
	if res.ConfirmedPosition != 4 {
		t.Errorf("ConfirmedPosition = %d, want 4", res.ConfirmedPosition)
	}
	if tr.Confirmed() != 4 {
		t.Errorf("Confirmed() = %d, want 4", tr.Confirmed())
	}
}

func TestProcessMatch_NilAndLowConfidenceHold(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})

	if res := tr.ProcessMatch(nil); res.Action != track.ActionHold {
		t.Errorf("nil candidate: Action = %q, want hold", res.Action)
	}

	low := cand(4, 3)
	low.CombinedScore = 0.5
	if res := tr.ProcessMatch(low); res.Action != track.ActionHold {
		t.Errorf("low confidence: Action = %q, want hold", res.Action)
	}
	if tr.Confirmed() != 0 {
		t.Errorf("Confirmed() = %d, want 0", tr.Confirmed())
	}
}

func TestProcessMatch_NeverMovesBackward(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})
	tr.ProcessMatch(cand(20, 3))
	if tr.Confirmed() != 20 {
		t.Fatalf("setup: Confirmed() = %d, want 20", tr.Confirmed())
	}

	// A perfect-looking match behind the confirmed position is ignored.
	back := cand(5, 3)
	back.CombinedScore = 1.0
	res := tr.ProcessMatch(back)

	if res.Action != track.ActionHold {
		t.Errorf("Action = %q, want hold for backward match", res.Action)
	}
	if tr.Confirmed() != 20 {
		t.Errorf("Confirmed() = %d, want 20 unchanged", tr.Confirmed())
	}

	// Lateral (same position) matches hold as well.
	if res := tr.ProcessMatch(cand(20, 3)); res.Action != track.ActionHold {
		t.Errorf("Action = %q, want hold for lateral match", res.Action)
	}
}

func TestProcessMatch_SmallSkipRequiresStreak(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})

	// First sighting of a position 30 words ahead: exploring, not advanced.
	res := tr.ProcessMatch(cand(30, 3))
	if res.Action != track.ActionExploring {
		t.Fatalf("first distant match: Action = %q, want exploring", res.Action)
	}
	if res.RequiredCount != track.DefaultSmallSkipConsecutive {
		t.Errorf("RequiredCount = %d, want %d", res.RequiredCount, track.DefaultSmallSkipConsecutive)
	}
	if res.ConsecutiveCount != 1 {
		t.Errorf("ConsecutiveCount = %d, want 1", res.ConsecutiveCount)
	}
	if tr.Confirmed() != 0 {
		t.Errorf("Confirmed() = %d, want 0 while exploring", tr.Confirmed())
	}

	// Three more consecutive sightings walking forward confirm the skip.
	tr.ProcessMatch(cand(31, 3))
	tr.ProcessMatch(cand(32, 3))
	res = tr.ProcessMatch(cand(33, 3))

	if res.Action != track.ActionAdvanced {
		t.Fatalf("fourth consecutive match: Action = %q, want advanced", res.Action)
	}
	if res.ConfirmedPosition != 33 {
		t.Errorf("ConfirmedPosition = %d, want 33", res.ConfirmedPosition)
	}
}

func TestProcessMatch_LargeSkipRequiresLongerStreak(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})

	positions := []int{80, 81, 82, 83}
	for _, p := range positions {
		if res := tr.ProcessMatch(cand(p, 3)); res.Action != track.ActionExploring {
			t.Fatalf("position %d: Action = %q, want exploring", p, res.Action)
		}
	}
	res := tr.ProcessMatch(cand(84, 3))
	if res.Action != track.ActionAdvanced {
		t.Fatalf("fifth consecutive match: Action = %q, want advanced", res.Action)
	}
	if res.ConfirmedPosition != 84 {
		t.Errorf("ConfirmedPosition = %d, want 84", res.ConfirmedPosition)
	}
}

func TestProcessMatch_NonConsecutiveResetsStreak(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})

	tr.ProcessMatch(cand(30, 3)) // streak 1
	tr.ProcessMatch(cand(31, 3)) // streak 2

	// A match far from the previous one breaks the streak.
	res := tr.ProcessMatch(cand(45, 3))
	if res.Action != track.ActionExploring {
		t.Fatalf("Action = %q, want exploring", res.Action)
	}
	if res.ConsecutiveCount != 1 {
		t.Errorf("ConsecutiveCount = %d, want 1 after streak break", res.ConsecutiveCount)
	}
}

func TestProcessMatch_GapToleranceAllowsSmallJitter(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})

	tr.ProcessMatch(cand(30, 3))
	// Next match starts two words past the previous end — within tolerance.
	c := &match.Candidate{
		Position:      34,
		StartPosition: 32,
		MatchCount:    3,
		CombinedScore: 0.95,
	}
	res := tr.ProcessMatch(c)
	if res.ConsecutiveCount != 2 {
		t.Errorf("ConsecutiveCount = %d, want 2 for in-tolerance gap", res.ConsecutiveCount)
	}
}

func TestReset_ReturnsToTop(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})
	tr.ProcessMatch(cand(8, 3))
	if tr.Confirmed() == 0 {
		t.Fatal("setup: expected an advance before reset")
	}

	tr.Reset()
	if tr.Confirmed() != 0 {
		t.Errorf("Confirmed() = %d after Reset, want 0", tr.Confirmed())
	}
}

func TestSetOptions_AppliesNewThresholds(t *testing.T) {
	t.Parallel()

	tr := track.New(track.Options{})
	tr.SetOptions(track.Options{NearbyThreshold: 40})

	// With the generous nearby threshold, a 30-word jump advances at once.
	res := tr.ProcessMatch(cand(30, 3))
	if res.Action != track.ActionAdvanced {
		t.Errorf("Action = %q, want advanced with widened nearby threshold", res.Action)
	}
}
