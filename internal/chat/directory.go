package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/chatcore/internal/model"
)

const maxChannelName = 50

// Directory maps channel ids to channel metadata.
type Directory struct {
	channels map[string]*model.Channel
}

// NewDirectory returns a directory that already contains "general".
func NewDirectory(now time.Time) *Directory {
	d := &Directory{channels: make(map[string]*model.Channel)}
	d.channels[model.GeneralChannelID] = &model.Channel{
		ID:        model.GeneralChannelID,
		Name:      "general",
		Kind:      model.ChannelPublic,
		CreatedAt: now,
		Expiry:    model.ExpiryNone,
	}
	return d
}

// ValidName reports whether name contains only letters, digits, spaces
// and hyphens and is not blank.
func ValidName(name string) bool {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > maxChannelName {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}

// Slug derives the public channel id from its name: lowercased, runs of
// spaces and hyphens collapsed to a single hyphen, trimmed.
func Slug(name string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == ' ' || r == '-' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// DirectID returns the stable id of the dm channel between a and b.
func DirectID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm-" + a + "-" + b
}

func (d *Directory) Get(id string) (*model.Channel, bool) {
	ch, ok := d.channels[id]
	return ch, ok
}

func (d *Directory) Len() int { return len(d.channels) }

// Create adds a public channel.
func (d *Directory) Create(name, createdBy string, now time.Time) (*model.Channel, error) {
	name = strings.TrimSpace(name)
	if !ValidName(name) {
		return nil, fmt.Errorf("create channel %q: %w", name, ErrInvalidName)
	}
	id := Slug(name)
	if id == "" {
		return nil, fmt.Errorf("create channel %q: %w", name, ErrInvalidName)
	}
	if _, ok := d.channels[id]; ok {
		return nil, fmt.Errorf("create channel %q: %w", id, ErrAlreadyExists)
	}
	ch := &model.Channel{
		ID:        id,
		Name:      name,
		Kind:      model.ChannelPublic,
		CreatedAt: now,
		CreatedBy: createdBy,
		Expiry:    model.ExpiryNone,
	}
	d.channels[id] = ch
	return ch, nil
}

// Delete removes a channel. "general" cannot be deleted.
func (d *Directory) Delete(id string) (*model.Channel, error) {
	if id == model.GeneralChannelID {
		return nil, fmt.Errorf("delete channel %q: %w", id, ErrProtected)
	}
	ch, ok := d.channels[id]
	if !ok {
		return nil, fmt.Errorf("delete channel %q: %w", id, ErrNotFound)
	}
	delete(d.channels, id)
	return ch, nil
}

// EnsureDirect returns the dm channel between a and b, creating it when
// missing. created reports whether a new channel was made.
func (d *Directory) EnsureDirect(a, b string, now time.Time) (ch *model.Channel, created bool) {
	id := DirectID(a, b)
	if ch, ok := d.channels[id]; ok {
		return ch, false
	}
	members := []string{a, b}
	sort.Strings(members)
	ch = &model.Channel{
		ID:        id,
		Name:      id,
		Kind:      model.ChannelDM,
		CreatedAt: now,
		CreatedBy: a,
		Members:   members,
		Expiry:    model.ExpiryNone,
	}
	d.channels[id] = ch
	return ch, true
}

// CreateGroup adds a members-only channel with a random id.
func (d *Directory) CreateGroup(name, createdBy string, members []string, now time.Time) (*model.Channel, error) {
	name = strings.TrimSpace(name)
	if !ValidName(name) {
		return nil, fmt.Errorf("create group %q: %w", name, ErrInvalidName)
	}
	members = lo.Uniq(lo.Compact(append([]string{createdBy}, members...)))
	sort.Strings(members)
	ch := &model.Channel{
		ID:        "group-" + uuid.NewString(),
		Name:      name,
		Kind:      model.ChannelGroup,
		CreatedAt: now,
		CreatedBy: createdBy,
		Members:   members,
		Expiry:    model.ExpiryNone,
	}
	d.channels[ch.ID] = ch
	return ch, nil
}

// UpdateSettings changes the expiry policy and/or persistence flag. A nil
// argument leaves the field untouched.
func (d *Directory) UpdateSettings(id string, expiry *model.ExpiryPolicy, persistent *bool) (*model.Channel, error) {
	ch, ok := d.channels[id]
	if !ok {
		return nil, fmt.Errorf("update channel %q: %w", id, ErrNotFound)
	}
	if expiry != nil {
		if !expiry.Valid() {
			return nil, fmt.Errorf("update channel %q: %w", id, ErrInvalidPolicy)
		}
		ch.Expiry = *expiry
	}
	if persistent != nil {
		ch.Persistent = *persistent
	}
	return ch, nil
}

// CanSee reports whether participant id may see ch.
func CanSee(ch *model.Channel, id string) bool {
	return !ch.Restricted() || ch.HasMember(id)
}

// VisibleTo lists every public channel plus the restricted channels the
// participant belongs to, oldest first.
func (d *Directory) VisibleTo(id string) []*model.Channel {
	out := lo.Filter(lo.Values(d.channels), func(ch *model.Channel, _ int) bool {
		return CanSee(ch, id)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
