package chat

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/chatcore/internal/model"
)

var emoteName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Emotes is the registry of custom emotes shared by every participant.
type Emotes struct {
	byName map[string]*model.Emote
}

func NewEmotes() *Emotes {
	return &Emotes{byName: make(map[string]*model.Emote)}
}

func (e *Emotes) Add(name, url, createdBy string, now time.Time) (*model.Emote, error) {
	if !emoteName.MatchString(name) || url == "" {
		return nil, fmt.Errorf("create emote %q: %w", name, ErrInvalidName)
	}
	if _, ok := e.byName[name]; ok {
		return nil, fmt.Errorf("create emote %q: %w", name, ErrAlreadyExists)
	}
	em := &model.Emote{Name: name, URL: url, CreatedBy: createdBy, CreatedAt: now}
	e.byName[name] = em
	return em, nil
}

// Remove deletes an emote; only its creator may do so.
func (e *Emotes) Remove(name, requesterID string) (*model.Emote, error) {
	em, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("delete emote %q: %w", name, ErrNotFound)
	}
	if em.CreatedBy != requesterID {
		return nil, fmt.Errorf("delete emote %q: %w", name, ErrNotAuthorized)
	}
	delete(e.byName, name)
	return em, nil
}

// List returns all emotes sorted by name.
func (e *Emotes) List() []model.Emote {
	out := lo.Map(lo.Values(e.byName), func(em *model.Emote, _ int) model.Emote { return *em })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
