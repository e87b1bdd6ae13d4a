package model

import (
	"fmt"
	"time"
)

type ChannelKind string

const (
	ChannelPublic ChannelKind = "public"
	ChannelDM     ChannelKind = "dm"
	ChannelGroup  ChannelKind = "group"
)

// GeneralChannelID is the public channel that always exists.
const GeneralChannelID = "general"

// DefaultExpiry applies when a channel has no expiry policy.
const DefaultExpiry = 24 * time.Hour

// ExpiryPolicy is the per-channel message lifetime.
type ExpiryPolicy string

const (
	ExpiryNone     ExpiryPolicy = "none"
	ExpiryHour     ExpiryPolicy = "1h"
	ExpirySixHours ExpiryPolicy = "6h"
	ExpiryHalfDay  ExpiryPolicy = "12h"
	ExpiryDay      ExpiryPolicy = "24h"
	ExpiryThreeDay ExpiryPolicy = "3d"
	ExpiryWeek     ExpiryPolicy = "7d"
)

var expiryDurations = map[ExpiryPolicy]time.Duration{
	ExpiryNone:     DefaultExpiry,
	"":             DefaultExpiry,
	ExpiryHour:     time.Hour,
	ExpirySixHours: 6 * time.Hour,
	ExpiryHalfDay:  12 * time.Hour,
	ExpiryDay:      24 * time.Hour,
	ExpiryThreeDay: 72 * time.Hour,
	ExpiryWeek:     7 * 24 * time.Hour,
}

// Valid reports whether p is one of the known policies.
func (p ExpiryPolicy) Valid() bool {
	_, ok := expiryDurations[p]
	return ok
}

// Duration returns the lifetime for p, falling back to DefaultExpiry.
func (p ExpiryPolicy) Duration() time.Duration {
	if d, ok := expiryDurations[p]; ok {
		return d
	}
	return DefaultExpiry
}

// ParseExpiryPolicy validates a client supplied policy string.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	p := ExpiryPolicy(s)
	if s == "" || !p.Valid() {
		return "", fmt.Errorf("unknown expiry policy %q", s)
	}
	return p, nil
}

type Channel struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Kind       ChannelKind  `json:"kind"`
	CreatedAt  time.Time    `json:"createdAt"`
	CreatedBy  string       `json:"createdBy,omitempty"`
	Members    []string     `json:"members,omitempty"`
	Expiry     ExpiryPolicy `json:"expiry"`
	Persistent bool         `json:"persistent"`
}

// Restricted reports whether the channel is limited to its member list.
func (c *Channel) Restricted() bool {
	return len(c.Members) > 0
}

// HasMember reports whether id is in the member list.
func (c *Channel) HasMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Clone returns a copy safe to hand to an encoder outside the hub lock.
func (c *Channel) Clone() *Channel {
	cp := *c
	if c.Members != nil {
		cp.Members = append([]string(nil), c.Members...)
	}
	return &cp
}

// Emote is a custom reaction image registered by a participant.
type Emote struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
