package model

import (
	"sort"
	"time"
)

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageGif   MessageKind = "gif"
	MessageFile  MessageKind = "file"
	MessageEmoji MessageKind = "emoji"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageGif, MessageFile, MessageEmoji:
		return true
	}
	return false
}

// Attachment references a blob owned by the file storage service.
type Attachment struct {
	URL  string `json:"url" validate:"required,max=2048"`
	Name string `json:"name,omitempty" validate:"max=255"`
	Size int64  `json:"size,omitempty" validate:"gte=0"`
	Mime string `json:"mime,omitempty" validate:"max=255"`
}

type Message struct {
	ID          string              `json:"id"`
	ChannelID   string              `json:"channelId"`
	AuthorID    string              `json:"authorId"`
	AuthorName  string              `json:"authorName"`
	AuthorColor string              `json:"authorColor,omitempty"`
	Body        string              `json:"body"`
	Kind        MessageKind         `json:"kind"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	Pinned      bool                `json:"pinned"`
	Edited      bool                `json:"edited"`
	ReplyTo     string              `json:"replyTo,omitempty"`
	Spoiler     bool                `json:"spoiler,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
}

// Clone deep-copies the mutable parts of m.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Attachments != nil {
		cp.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	cp.Reactions = CloneReactions(m.Reactions)
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// AttachmentRefs returns the URLs of all attachments.
func (m *Message) AttachmentRefs() []string {
	refs := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a.URL != "" {
			refs = append(refs, a.URL)
		}
	}
	return refs
}

// CloneReactions copies a reaction map; nil stays nil.
func CloneReactions(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, ids := range in {
		cp := append([]string(nil), ids...)
		sort.Strings(cp)
		out[k] = cp
	}
	return out
}
