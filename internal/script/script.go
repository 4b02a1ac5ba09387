// Package script builds the immutable word index of a reference text that the
// matching pipeline searches against.
//
// An [Index] is constructed once per script and never mutated afterwards. Each
// token carries its normalized word form, its 0-based position in the word
// sequence, and the byte offsets of the original word in the raw script so
// that a display client can highlight the matched span without re-tokenizing.
package script

import (
	"strings"
	"unicode"
)

// Token is one word of the reference text.
type Token struct {
	// Text is the normalized (lowercased, punctuation-stripped) word.
	Text string

	// Index is the 0-based position of this word in the script.
	Index int

	// Start and End are byte offsets of the original word in the raw script
	// text, suitable for highlighting. End is exclusive.
	Start int
	End   int
}

// Index is the ordered word sequence of one script. It is read-only after
// construction and therefore safe for concurrent use.
type Index struct {
	raw    string
	tokens []Token
}

// NewIndex tokenizes raw and returns the resulting [Index]. Words are runs of
// letters, digits, and word-internal apostrophes; everything else separates
// words. Words that normalize to the empty string (pure punctuation) are
// dropped.
func NewIndex(raw string) *Index {
	ix := &Index{raw: raw}

	start := -1
	for i, r := range raw {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			ix.appendToken(raw[start:i], start, i)
			start = -1
		}
	}
	if start >= 0 {
		ix.appendToken(raw[start:], start, len(raw))
	}
	return ix
}

func (ix *Index) appendToken(word string, start, end int) {
	norm := Normalize(word)
	if norm == "" {
		return
	}
	ix.tokens = append(ix.tokens, Token{
		Text:  norm,
		Index: len(ix.tokens),
		Start: start,
		End:   end,
	})
}

// Len returns the number of words in the script.
func (ix *Index) Len() int {
	return len(ix.tokens)
}

// Token returns the token at position i. i must be in [0, Len()).
func (ix *Index) Token(i int) Token {
	return ix.tokens[i]
}

// Tokens returns the underlying token slice. Callers must treat it as
// read-only.
func (ix *Index) Tokens() []Token {
	return ix.tokens
}

// Raw returns the original script text the index was built from.
func (ix *Index) Raw() string {
	return ix.raw
}

// Clamp returns pos constrained to the valid token range [0, Len()-1].
// An empty index always clamps to 0.
func (ix *Index) Clamp(pos int) int {
	if pos < 0 || len(ix.tokens) == 0 {
		return 0
	}
	if pos >= len(ix.tokens) {
		return len(ix.tokens) - 1
	}
	return pos
}

// Normalize lowercases w and strips every rune that is not a letter or digit.
// Returns the empty string when nothing survives.
func Normalize(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	for _, r := range strings.ToLower(w) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isWordRune reports whether r belongs inside a word during tokenization.
// Apostrophes stay inside so "don't" is one token; Normalize drops them from
// the stored form.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’'
}
