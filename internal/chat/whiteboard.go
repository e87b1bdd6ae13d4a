package chat

import "encoding/json"

// MaxStrokes bounds the per-channel whiteboard log; the oldest strokes
// are dropped first.
const MaxStrokes = 500

// Whiteboards keeps the shared drawing of each channel as opaque strokes.
type Whiteboards struct {
	strokes map[string][]json.RawMessage
	limit   int
}

func NewWhiteboards(limit int) *Whiteboards {
	if limit <= 0 {
		limit = MaxStrokes
	}
	return &Whiteboards{strokes: make(map[string][]json.RawMessage), limit: limit}
}

func (w *Whiteboards) Draw(channelID string, stroke json.RawMessage) {
	s := append(w.strokes[channelID], append(json.RawMessage(nil), stroke...))
	if over := len(s) - w.limit; over > 0 {
		s = append([]json.RawMessage(nil), s[over:]...)
	}
	w.strokes[channelID] = s
}

func (w *Whiteboards) Strokes(channelID string) []json.RawMessage {
	return append([]json.RawMessage(nil), w.strokes[channelID]...)
}

// Clear empties the drawing and reports whether there was anything to clear.
func (w *Whiteboards) Clear(channelID string) bool {
	_, ok := w.strokes[channelID]
	delete(w.strokes, channelID)
	return ok
}
