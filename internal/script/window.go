package script

import "strings"

// fillerWords are discarded when building a speech window. Only pure
// hesitation sounds are listed — discourse words such as "so" or "well" are
// kept because they legitimately occur in scripts and removing them would
// distort the window.
var fillerWords = map[string]struct{}{
	"um":  {},
	"uh":  {},
	"uhm": {},
	"umm": {},
	"er":  {},
	"erm": {},
	"ah":  {},
	"eh":  {},
	"hm":  {},
	"hmm": {},
	"mhm": {},
	"mm":  {},
	"huh": {},
}

// IsFiller reports whether the normalized word w is a filler word.
func IsFiller(w string) bool {
	_, ok := fillerWords[w]
	return ok
}

// Window returns the last n normalized, filler-filtered words of text, in
// spoken order. Fewer than n words may be returned when the text is short or
// consists mostly of fillers; the caller decides whether the remainder is
// enough to match on.
func Window(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	var words []string
	for _, f := range strings.Fields(text) {
		norm := Normalize(f)
		if norm == "" || IsFiller(norm) {
			continue
		}
		words = append(words, norm)
	}
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return words
}
