package web

// Message types sent to display clients. Every message carries a Type
// discriminator so clients can switch without trial decoding.
const (
	// TypeScript is sent once after connect and carries the full script.
	TypeScript = "script"

	// TypeFrame carries the current scroll offset. Sent on every offset
	// change, which in practice means once per frame while scrolling.
	TypeFrame = "frame"

	// TypeHighlight marks the span of script text that was just matched.
	TypeHighlight = "highlight"

	// TypeState announces scroll-state transitions (tracking, holding,
	// stopped).
	TypeState = "state"
)

// ScriptMessage is the initial snapshot a display needs to render.
type ScriptMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// FrameMessage is the per-frame scroll update.
type FrameMessage struct {
	Type string `json:"type"`

	// Offset is the target scroll offset in pixels.
	Offset float64 `json:"offset"`

	// DisplayPosition is the smoothly interpolated word position.
	DisplayPosition float64 `json:"display_position"`

	// Position is the confirmed word position.
	Position int `json:"position"`

	// Pace is the estimated speaking pace in words per second.
	Pace float64 `json:"pace"`

	// CatchingUp reports whether the display is recovering from a skip.
	CatchingUp bool `json:"catching_up"`
}

// HighlightMessage marks matched script text by byte offset into the script.
type HighlightMessage struct {
	Type     string `json:"type"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Position int    `json:"position"`

	// Action is the tracker decision that produced this highlight.
	Action string `json:"action"`
}

// StateMessage announces a scroll-state change.
type StateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// ClientCommand is what a display may send back. Only "reset" is recognised
// today; unknown commands are ignored.
type ClientCommand struct {
	Type string `json:"type"`
}
