// Package match implements the stateless fuzzy candidate matcher of the
// tracking pipeline.
//
// [Find] scores candidate positions in a script index against a short window
// of recently spoken words. Every window word must fuzzily match the
// reference word at the corresponding position — partial window matches are
// rejected. Each full match is ranked by a combined score that blends text
// similarity (per-word Jaro-Winkler) with distance from the caller's current
// position, so that of two textually identical matches the nearer one always
// wins.
//
// Find has no state between calls: identical inputs yield identical outputs.
package match

import (
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/autocue/internal/script"
)

// Defaults for [Options]. Zero-valued options fields fall back to these.
const (
	DefaultRadius         = 50
	DefaultMinConsecutive = 2
	DefaultDistanceWeight = 0.3
	DefaultWordThreshold  = 0.82
)

// Options tunes a [Find] call.
type Options struct {
	// Radius bounds the search to [current-Radius, current+Radius] word
	// positions. Default 50.
	Radius int

	// MinConsecutive is the minimum number of window words required before
	// any candidate is produced. A single common word must never trigger a
	// match. Default 2.
	MinConsecutive int

	// DistanceWeight controls how strongly proximity to the current position
	// beats raw text similarity, in [0, 1]. Default 0.3.
	DistanceWeight float64

	// WordThreshold is the minimum per-word Jaro-Winkler similarity for a
	// window word to count as matching a reference word. Default 0.82.
	WordThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Radius <= 0 {
		o.Radius = DefaultRadius
	}
	if o.MinConsecutive <= 0 {
		o.MinConsecutive = DefaultMinConsecutive
	}
	if o.DistanceWeight == 0 {
		o.DistanceWeight = DefaultDistanceWeight
	}
	if o.WordThreshold == 0 {
		o.WordThreshold = DefaultWordThreshold
	}
	return o
}

// Candidate is one scored position in the reference text.
type Candidate struct {
	// Position is the word index of the last matched reference word.
	Position int

	// StartPosition is the word index where the match begins.
	StartPosition int

	// MatchCount is the number of consecutively matched words.
	MatchCount int

	// CombinedScore ranks the candidate in [0, 1]; higher is better.
	CombinedScore float64

	// StartOffset and EndOffset are byte offsets of the matched span in the
	// raw script, for highlighting.
	StartOffset int
	EndOffset   int
}

// Result is the output of one [Find] call.
type Result struct {
	// Candidates holds all full-window matches, best first.
	Candidates []Candidate

	// Best is the top-ranked candidate, or nil when nothing matched.
	Best *Candidate
}

// Find scores every candidate start position within the radius around
// currentPos and returns the ranked matches. window must already be
// normalized and filler-filtered (see [script.Window]).
//
// Degenerate inputs never fail: an empty or too-short window, an empty index,
// or an out-of-range currentPos all return an empty Result.
func Find(window []string, ix *script.Index, currentPos int, opts Options) Result {
	opts = opts.withDefaults()

	if ix == nil || ix.Len() == 0 || len(window) < opts.MinConsecutive {
		return Result{}
	}

	currentPos = ix.Clamp(currentPos)

	lo := currentPos - opts.Radius
	if lo < 0 {
		lo = 0
	}
	hi := currentPos + opts.Radius
	if max := ix.Len() - len(window); hi > max {
		hi = max
	}

	var candidates []Candidate
	for start := lo; start <= hi; start++ {
		quality, ok := windowQuality(window, ix, start, opts.WordThreshold)
		if !ok {
			continue
		}

		end := start + len(window) - 1
		distance := end - currentPos
		if distance < 0 {
			distance = -distance
		}
		penalty := float64(distance) / float64(opts.Radius)
		if penalty > 1 {
			penalty = 1
		}

		candidates = append(candidates, Candidate{
			Position:      end,
			StartPosition: start,
			MatchCount:    len(window),
			CombinedScore: quality * (1 - opts.DistanceWeight*penalty),
			StartOffset:   ix.Token(start).Start,
			EndOffset:     ix.Token(end).End,
		})
	}

	if len(candidates) == 0 {
		return Result{}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
	return Result{Candidates: candidates, Best: &candidates[0]}
}

// windowQuality fuzzily matches every window word against the reference words
// starting at start. It returns the average per-word similarity and whether
// all words cleared the threshold.
func windowQuality(window []string, ix *script.Index, start int, threshold float64) (float64, bool) {
	var sum float64
	for i, w := range window {
		sim := wordSimilarity(w, ix.Token(start+i).Text)
		if sim < threshold {
			return 0, false
		}
		sum += sim
	}
	return sum / float64(len(window)), true
}

// wordSimilarity returns the similarity of two normalized words in [0, 1].
// Exact matches short-circuit to 1 so that Jaro-Winkler rounding can never
// penalise a verbatim word.
func wordSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return matchr.JaroWinkler(a, b, false)
}
