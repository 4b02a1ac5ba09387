package motion

// Viewport describes the geometry of the scrollable display the controller
// drives. All values are in pixels except WordCount. The engine never
// renders; it only needs enough geometry to map a word position to the
// scroll offset that places that word at the caret line.
type Viewport struct {
	// Height is the visible viewport height.
	Height float64

	// PxPerWord is the average vertical extent of one script word as laid
	// out by the display client.
	PxPerWord float64

	// LeadingPadding is blank space above the first word, so the script can
	// start below the caret line.
	LeadingPadding float64

	// TrailingPadding is blank space below the last word, so the script can
	// finish scrolling past the caret line.
	TrailingPadding float64

	// WordCount is the total number of words in the script.
	WordCount int
}

// ContentHeight returns the total scrollable content height.
func (v Viewport) ContentHeight() float64 {
	return v.LeadingPadding + float64(v.WordCount)*v.PxPerWord + v.TrailingPadding
}

// MaxScroll returns the largest valid scroll offset.
func (v Viewport) MaxScroll() float64 {
	m := v.ContentHeight() - v.Height
	if m < 0 {
		return 0
	}
	return m
}

// OffsetFor returns the scroll offset that places the word at position pos on
// the caret line (caretPercent of the viewport height from the top), clamped
// to the valid scroll range.
func (v Viewport) OffsetFor(pos float64, caretPercent float64) float64 {
	off := v.LeadingPadding + pos*v.PxPerWord - caretPercent*v.Height
	if off < 0 {
		return 0
	}
	if max := v.MaxScroll(); off > max {
		return max
	}
	return off
}
