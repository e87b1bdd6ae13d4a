package chat

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/chatcore/internal/model"
)

// Extras carries the optional parts of a new message.
type Extras struct {
	Attachments []model.Attachment
	ReplyTo     string
	Spoiler     bool
	AuthorColor string
}

type channelLog struct {
	order  []string
	byID   map[string]*model.Message
	pinned map[string]struct{}
}

// MessageStore keeps an append-ordered log of messages per channel.
type MessageStore struct {
	channels  map[string]*channelLog
	lastStamp int64
}

func NewMessageStore() *MessageStore {
	return &MessageStore{channels: make(map[string]*channelLog)}
}

func (s *MessageStore) log(channelID string, create bool) *channelLog {
	l, ok := s.channels[channelID]
	if !ok && create {
		l = &channelLog{byID: make(map[string]*model.Message), pinned: make(map[string]struct{})}
		s.channels[channelID] = l
	}
	return l
}

// nextID builds "<base36 nanos>-<author>". The stamp is strictly
// increasing so ids never collide and sort roughly by creation time.
func (s *MessageStore) nextID(now time.Time, authorID string) string {
	stamp := now.UnixNano()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return strconv.FormatInt(stamp, 36) + "-" + authorID
}

// Append adds a message to ch. ExpiresAt is always set from the channel
// policy, or model.DefaultExpiry when the channel has none.
func (s *MessageStore) Append(ch *model.Channel, author *model.Participant, body string, kind model.MessageKind, extras Extras, now time.Time) *model.Message {
	if !kind.Valid() {
		kind = model.MessageText
	}
	expires := now.Add(ch.Expiry.Duration())
	m := &model.Message{
		ID:          s.nextID(now, author.ID),
		ChannelID:   ch.ID,
		AuthorID:    author.ID,
		AuthorName:  author.Name,
		AuthorColor: author.Color,
		Body:        body,
		Kind:        kind,
		Attachments: extras.Attachments,
		ReplyTo:     extras.ReplyTo,
		Spoiler:     extras.Spoiler,
		CreatedAt:   now,
		ExpiresAt:   &expires,
	}
	if extras.AuthorColor != "" {
		m.AuthorColor = extras.AuthorColor
	}
	l := s.log(ch.ID, true)
	l.order = append(l.order, m.ID)
	l.byID[m.ID] = m
	return m
}

// Get returns the message or ErrNotFound.
func (s *MessageStore) Get(channelID, messageID string) (*model.Message, error) {
	l := s.log(channelID, false)
	if l == nil {
		return nil, fmt.Errorf("message %s/%s: %w", channelID, messageID, ErrNotFound)
	}
	m, ok := l.byID[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s/%s: %w", channelID, messageID, ErrNotFound)
	}
	return m, nil
}

// Edit replaces the body of a message the author owns.
func (s *MessageStore) Edit(channelID, messageID, authorID, body string) (*model.Message, error) {
	m, err := s.Get(channelID, messageID)
	if err != nil {
		return nil, err
	}
	if m.AuthorID != authorID {
		return nil, fmt.Errorf("edit message %s: %w", messageID, ErrNotAuthorized)
	}
	m.Body = body
	m.Edited = true
	return m, nil
}

// Remove deletes a message on behalf of its author.
func (s *MessageStore) Remove(channelID, messageID, requesterID string) (*model.Message, error) {
	m, err := s.Get(channelID, messageID)
	if err != nil {
		return nil, err
	}
	if m.AuthorID != requesterID {
		return nil, fmt.Errorf("remove message %s: %w", messageID, ErrNotAuthorized)
	}
	return s.RemoveAny(channelID, messageID)
}

// RemoveAny deletes a message without an author check. It is the path
// used by expiry and channel deletion. The removed message is returned
// with Pinned and Reactions cleared.
func (s *MessageStore) RemoveAny(channelID, messageID string) (*model.Message, error) {
	m, err := s.Get(channelID, messageID)
	if err != nil {
		return nil, err
	}
	l := s.channels[channelID]
	delete(l.byID, messageID)
	delete(l.pinned, messageID)
	if i := lo.IndexOf(l.order, messageID); i >= 0 {
		l.order = append(l.order[:i], l.order[i+1:]...)
	}
	m.Pinned = false
	m.Reactions = nil
	return m, nil
}

// DropChannel removes every message of a channel and returns them in
// append order.
func (s *MessageStore) DropChannel(channelID string) []*model.Message {
	l := s.log(channelID, false)
	if l == nil {
		return nil
	}
	out := make([]*model.Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	delete(s.channels, channelID)
	return out
}

// TogglePin flips the pin flag and keeps the per-channel pin set in sync.
func (s *MessageStore) TogglePin(channelID, messageID string) (*model.Message, error) {
	m, err := s.Get(channelID, messageID)
	if err != nil {
		return nil, err
	}
	l := s.channels[channelID]
	m.Pinned = !m.Pinned
	if m.Pinned {
		l.pinned[messageID] = struct{}{}
	} else {
		delete(l.pinned, messageID)
	}
	return m, nil
}

// AddReaction records reactor under key. Adding twice is a no-op.
func (s *MessageStore) AddReaction(channelID, messageID, reactorID, key string) (*model.Message, bool, error) {
	m, err := s.Get(channelID, messageID)
	if err != nil {
		return nil, false, err
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	ids := m.Reactions[key]
	if lo.Contains(ids, reactorID) {
		return m, false, nil
	}
	ids = append(ids, reactorID)
	sort.Strings(ids)
	m.Reactions[key] = ids
	return m, true, nil
}

// RemoveReaction drops reactor from key, pruning the key when empty.
// Removing an absent reaction is a no-op.
func (s *MessageStore) RemoveReaction(channelID, messageID, reactorID, key string) (*model.Message, bool, error) {
	m, err := s.Get(channelID, messageID)
	if err != nil {
		return nil, false, err
	}
	ids, ok := m.Reactions[key]
	if !ok || !lo.Contains(ids, reactorID) {
		return m, false, nil
	}
	ids = lo.Without(ids, reactorID)
	if len(ids) == 0 {
		delete(m.Reactions, key)
	} else {
		m.Reactions[key] = ids
	}
	if len(m.Reactions) == 0 {
		m.Reactions = nil
	}
	return m, true, nil
}

// History returns the channel's messages in append order.
func (s *MessageStore) History(channelID string) []*model.Message {
	l := s.log(channelID, false)
	if l == nil {
		return nil
	}
	out := make([]*model.Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// Pinned returns the pinned messages of a channel in append order.
func (s *MessageStore) Pinned(channelID string) []*model.Message {
	l := s.log(channelID, false)
	if l == nil || len(l.pinned) == 0 {
		return nil
	}
	out := make([]*model.Message, 0, len(l.pinned))
	for _, id := range l.order {
		if _, ok := l.pinned[id]; ok {
			out = append(out, l.byID[id])
		}
	}
	return out
}

// Len returns the total number of stored messages.
func (s *MessageStore) Len() int {
	n := 0
	for _, l := range s.channels {
		n += len(l.byID)
	}
	return n
}
