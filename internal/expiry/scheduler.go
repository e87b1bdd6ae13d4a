// Package expiry owns the per-message deletion timers.
package expiry

import (
	"sync"
	"time"

	"github.com/chatcore/internal/clock"
	"github.com/chatcore/internal/logger"
)

// ExpireFunc is called when a message's deadline passes. It runs without
// any scheduler lock held and must tolerate the message being gone.
type ExpireFunc func(messageID, channelID string)

type entry struct {
	channelID string
	deadline  time.Time
	timer     clock.Timer
	gen       uint64
}

// Scheduler keeps at most one outstanding timer per message id.
type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	onExpire ExpireFunc
	entries  map[string]*entry
	gen      uint64
	stopped  bool
}

func New(c clock.Clock, onExpire ExpireFunc) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{
		clock:    c,
		onExpire: onExpire,
		entries:  make(map[string]*entry),
	}
}

// Schedule arms a timer for messageID, replacing any existing one. When
// the deadline is not in the future nothing is armed and false is
// returned; the caller removes the message itself.
func (s *Scheduler) Schedule(messageID, channelID string, deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return true
	}
	s.cancelLocked(messageID)

	delay := deadline.Sub(s.clock.Now())
	if delay <= 0 {
		return false
	}
	s.gen++
	e := &entry{channelID: channelID, deadline: deadline, gen: s.gen}
	s.entries[messageID] = e
	gen := e.gen
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(messageID, gen) })
	logger.Debugf("expiry scheduled message=%s channel=%s in=%s", messageID, channelID, delay)
	return true
}

// Cancel stops the timer for messageID. No-op if none is pending.
func (s *Scheduler) Cancel(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(messageID)
}

func (s *Scheduler) cancelLocked(messageID string) {
	e, ok := s.entries[messageID]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, messageID)
}

func (s *Scheduler) fire(messageID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[messageID]
	// A cancelled or rescheduled entry must not be acted on by its old timer.
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.entries, messageID)
	channelID := e.channelID
	s.mu.Unlock()

	if s.onExpire != nil {
		s.onExpire(messageID, channelID)
	}
}

// Deadline returns the pending deadline for messageID.
func (s *Scheduler) Deadline(messageID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[messageID]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every timer. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.entries {
		s.cancelLocked(id)
	}
	s.stopped = true
}
