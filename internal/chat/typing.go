package chat

import (
	"sort"

	"github.com/samber/lo"
)

// Typing tracks, per channel, who is composing a message.
type Typing struct {
	byChannel map[string]map[string]struct{}
}

func NewTyping() *Typing {
	return &Typing{byChannel: make(map[string]map[string]struct{})}
}

// Set adds or removes participantID and reports whether the set changed.
func (t *Typing) Set(channelID, participantID string, typing bool) bool {
	set := t.byChannel[channelID]
	_, present := set[participantID]
	switch {
	case typing && !present:
		if set == nil {
			set = make(map[string]struct{})
			t.byChannel[channelID] = set
		}
		set[participantID] = struct{}{}
		return true
	case !typing && present:
		delete(set, participantID)
		if len(set) == 0 {
			delete(t.byChannel, channelID)
		}
		return true
	}
	return false
}

// IDs returns the sorted ids currently typing in a channel.
func (t *Typing) IDs(channelID string) []string {
	ids := lo.Keys(t.byChannel[channelID])
	sort.Strings(ids)
	return ids
}

// ClearParticipant removes participantID everywhere and returns the
// channels whose set changed.
func (t *Typing) ClearParticipant(participantID string) []string {
	return t.ClearOthers(participantID, "")
}

// ClearOthers removes participantID from every channel except keep and
// returns the channels whose set changed, sorted.
func (t *Typing) ClearOthers(participantID, keep string) []string {
	var changed []string
	for channelID := range t.byChannel {
		if channelID != keep && t.Set(channelID, participantID, false) {
			changed = append(changed, channelID)
		}
	}
	sort.Strings(changed)
	return changed
}

// Drop forgets a channel entirely.
func (t *Typing) Drop(channelID string) {
	delete(t.byChannel, channelID)
}
