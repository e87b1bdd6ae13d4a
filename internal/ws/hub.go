package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chatcore/internal/attachments"
	"github.com/chatcore/internal/chat"
	"github.com/chatcore/internal/clock"
	"github.com/chatcore/internal/expiry"
	"github.com/chatcore/internal/logger"
	"github.com/chatcore/internal/model"
	"github.com/chatcore/internal/signaling"
	"github.com/chatcore/internal/storage"
)

// Options configures a Hub. Zero values fall back to the defaults below.
type Options struct {
	MaxConns       int
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	// Clock drives message expiry; tests pass clock.Fake.
	Clock clock.Clock
	// Attachments receives best-effort deletes for removed messages. Nil disables cleanup.
	Attachments attachments.Store
	// Limiter bounds chat events per participant. Nil disables the limit.
	Limiter storage.EventLimiter
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 10000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

// Hub owns every piece of shared chat state. All of it (registry,
// channels, messages, typing, signaling, emotes, whiteboards) is guarded
// by mu; events for one channel are enqueued while mu is held, so each
// recipient sees them in the order they were produced.
type Hub struct {
	opts     Options
	validate *validator.Validate
	routes   map[EventType]route

	mu           sync.Mutex
	clients      map[string]*Client
	participants map[string]*model.Participant
	current      map[string]string
	dir          *chat.Directory
	store        *chat.MessageStore
	typing       *chat.Typing
	emotes       *chat.Emotes
	boards       *chat.Whiteboards
	relay        *signaling.Relay
	expiry       *expiry.Scheduler

	closed     bool
	unregister chan *Client
	done       chan struct{}
}

func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		opts:         opts,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		clients:      make(map[string]*Client),
		participants: make(map[string]*model.Participant),
		current:      make(map[string]string),
		dir:          chat.NewDirectory(opts.Clock.Now()),
		store:        chat.NewMessageStore(),
		typing:       chat.NewTyping(),
		emotes:       chat.NewEmotes(),
		boards:       chat.NewWhiteboards(chat.MaxStrokes),
		unregister:   make(chan *Client, 64),
		done:         make(chan struct{}),
	}
	h.relay = signaling.NewRelay(relayOut{h})
	h.expiry = expiry.New(opts.Clock, h.expire)
	h.routes = h.buildRoutes()
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.expiry.Stop()

	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	h.closed = true
	allClients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[string]*Client)
	h.participants = make(map[string]*model.Participant)
	h.current = make(map[string]string)
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
	logger.Infof("ws hub stopped, closed %d connections", len(allClients))
}

func (h *Hub) addClient(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return false
	}
	if len(h.clients) >= h.opts.MaxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting conn=%s", h.opts.MaxConns, c.id)
		c.Close()
		return false
	}
	h.clients[c.id] = c
	h.mu.Unlock()
	logger.Debugf("ws connected conn=%s", c.id)
	return true
}

// removeClient drops the connection and everything it owned before the
// next event from any other connection is processed: typing flags,
// screen share, call legs, then user-left.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	p, joined := h.participants[c.id]
	if joined {
		for _, channelID := range h.typing.ClearParticipant(c.id) {
			h.broadcastTypingLocked(channelID)
		}
		if channelID, sharing := h.relay.Disconnect(c.id); sharing {
			h.toChannelLocked(channelID, EventScreenShareStopped, ScreenShare{ChannelID: channelID, ParticipantID: c.id, Name: p.Name})
		}
		delete(h.participants, c.id)
		delete(h.current, c.id)
		h.toAllLocked(EventUserLeft, UserLeftPayload{ID: c.id, Name: p.Name}, "")
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
	if joined {
		logger.Infof("ws participant left conn=%s name=%q", c.id, p.Name)
		if h.opts.Limiter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.opts.Limiter.Reset(ctx, c.id); err != nil {
				logger.Errorf("ws limiter reset conn=%s: %v", c.id, err)
			}
		}
	}
}

// effects collects work that must happen after mu is released.
type effects struct {
	refs []string
}

func (fx *effects) deleteAttachments(m *model.Message) {
	fx.refs = append(fx.refs, m.AttachmentRefs()...)
}

// route is one entry of the inbound event table: a typed payload decoder
// and the handler that runs under mu.
type route struct {
	bind    func(raw json.RawMessage) (any, error)
	run     func(c *Client, payload any, fx *effects) error
	limited bool
}

func on[T any](v *validator.Validate, fn func(c *Client, p *T, fx *effects) error) route {
	return route{
		bind: func(raw json.RawMessage) (any, error) {
			var p T
			if len(raw) == 0 || string(raw) == "null" {
				raw = json.RawMessage("{}")
			}
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidPayload, err)
			}
			if err := v.Struct(&p); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidPayload, err)
			}
			return &p, nil
		},
		run: func(c *Client, p any, fx *effects) error { return fn(c, p.(*T), fx) },
	}
}

// limit marks a route as counted against the participant's event budget.
func (r route) limit() route {
	r.limited = true
	return r
}

// HandleMessage dispatches one inbound event. Panics are recovered per
// event so one bad request never takes the connection or the process down.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("ws panic conn=%s type=%s: %v\n%s", c.id, msg.Type, rec, debug.Stack())
			h.replyError(c, msg, errInternal)
		}
	}()
	defer logger.DeferLogDuration("ws."+string(msg.Type), time.Now())()

	r, ok := h.routes[msg.Type]
	if !ok {
		h.replyError(c, msg, errUnknownEvent)
		return
	}
	payload, err := r.bind(msg.Payload)
	if err != nil {
		h.replyError(c, msg, err)
		return
	}
	if r.limited && !h.allow(ctx, c) {
		h.replyError(c, msg, errRateLimited)
		return
	}

	var fx effects
	err = func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if msg.Type != EventJoin {
			if _, joined := h.participants[c.id]; !joined {
				return errNotJoined
			}
		}
		return r.run(c, payload, &fx)
	}()
	if err != nil {
		h.replyError(c, msg, err)
	}
	h.cleanup(ctx, fx)
}

func (h *Hub) allow(ctx context.Context, c *Client) bool {
	if h.opts.Limiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := h.opts.Limiter.Allow(ctx, c.id)
	if err != nil {
		// Limiter outage must not block chat.
		logger.Errorf("ws limiter conn=%s: %v", c.id, err)
		return true
	}
	return ok
}

// cleanup deletes attachment blobs after mu is released. Failures are
// logged and never reach the requester.
func (h *Hub) cleanup(ctx context.Context, fx effects) {
	if h.opts.Attachments == nil || len(fx.refs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, ref := range fx.refs {
		if err := h.opts.Attachments.Delete(ctx, ref); err != nil {
			logger.Errorf("ws delete attachment %s: %v", ref, err)
		}
	}
}

// expire is the scheduler callback. The message may already be gone; that
// is a no-op, so a timer racing a user delete never broadcasts twice.
func (h *Hub) expire(messageID, channelID string) {
	var fx effects
	h.mu.Lock()
	m, err := h.store.RemoveAny(channelID, messageID)
	if err != nil {
		h.mu.Unlock()
		logger.Debugf("ws expire message=%s channel=%s: already gone", messageID, channelID)
		return
	}
	h.removedLocked(m, &fx)
	h.mu.Unlock()
	logger.Debugf("ws expired message=%s channel=%s", messageID, channelID)
	h.cleanup(context.Background(), fx)
}

// removedLocked finishes a removal already applied to the store: cancels
// the timer, broadcasts once and queues attachment cleanup.
func (h *Hub) removedLocked(m *model.Message, fx *effects) {
	h.expiry.Cancel(m.ID)
	h.toChannelLocked(m.ChannelID, EventMessageDeleted, MessageDeletedPayload{ChannelID: m.ChannelID, MessageID: m.ID})
	fx.deleteAttachments(m)
}

// --- fan-out ---

// toChannelLocked is the single chokepoint for channel events: members
// only for dm/group channels, every joined connection otherwise.
func (h *Hub) toChannelLocked(channelID string, t EventType, payload any) {
	ch, ok := h.dir.Get(channelID)
	if !ok {
		logger.Debugf("ws broadcast %s to missing channel %s", t, channelID)
		return
	}
	h.toAudienceLocked(ch, t, payload)
}

func (h *Hub) toAudienceLocked(ch *model.Channel, t EventType, payload any) {
	out := OutgoingMessage{Type: t, Payload: payload}
	if ch.Restricted() {
		for _, id := range ch.Members {
			h.sendToParticipantLocked(id, out)
		}
		return
	}
	for id := range h.participants {
		h.sendToParticipantLocked(id, out)
	}
}

// toAllLocked reaches every joined connection except the one given.
func (h *Hub) toAllLocked(t EventType, payload any, except string) {
	out := OutgoingMessage{Type: t, Payload: payload}
	for id := range h.participants {
		if id != except {
			h.sendToParticipantLocked(id, out)
		}
	}
}

func (h *Hub) sendToParticipantLocked(id string, out OutgoingMessage) bool {
	if _, joined := h.participants[id]; !joined {
		return false
	}
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	h.sendLocked(c, out)
	return true
}

func (h *Hub) sendLocked(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client conn=%s", c.id)
		c.Close()
	}
}

// relayOut lets the signaling relay address connections. The relay only
// runs under mu, so no locking here.
type relayOut struct{ h *Hub }

func (r relayOut) Send(connID, event string, payload any) bool {
	return r.h.sendToParticipantLocked(connID, OutgoingMessage{Type: EventType(event), Payload: payload})
}

func (h *Hub) replyError(c *Client, msg IncomingMessage, err error) {
	code := errorCode(err)
	if code == codeInternal {
		logger.Errorf("ws %s conn=%s: %v", msg.Type, c.id, err)
	} else {
		logger.Debugf("ws %s conn=%s rejected: %v", msg.Type, c.id, err)
	}
	out := OutgoingMessage{Type: EventError, Payload: ErrorPayload{
		Code:      code,
		Message:   err.Error(),
		Type:      msg.Type,
		RequestID: msg.RequestID,
	}}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, out)
}

// --- helpers used by handlers, all under mu ---

func (h *Hub) now() time.Time { return h.opts.Clock.Now() }

// visibleLocked returns the channel when participantID may see it.
func (h *Hub) visibleLocked(channelID, participantID string) (*model.Channel, error) {
	ch, ok := h.dir.Get(channelID)
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotFound)
	}
	if !chat.CanSee(ch, participantID) {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotAuthorized)
	}
	return ch, nil
}

// manageableLocked returns the channel when participantID may change it:
// anyone for public channels, members only for dm/group.
func (h *Hub) manageableLocked(channelID, participantID string) (*model.Channel, error) {
	ch, ok := h.dir.Get(channelID)
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotFound)
	}
	if ch.Restricted() && !ch.HasMember(participantID) {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotAuthorized)
	}
	return ch, nil
}

func (h *Hub) broadcastTypingLocked(channelID string) {
	ids := h.typing.IDs(channelID)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := h.participants[id]; ok {
			names = append(names, p.Name)
		}
	}
	h.toChannelLocked(channelID, EventTyping, TypingPayload{ChannelID: channelID, Names: names})
}

func (h *Hub) participantListLocked() []model.Participant {
	out := make([]model.Participant, 0, len(h.participants))
	for _, p := range h.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneMessages(in []*model.Message) []*model.Message {
	out := make([]*model.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

func cloneChannels(in []*model.Channel) []*model.Channel {
	out := make([]*model.Channel, len(in))
	for i, ch := range in {
		out[i] = ch.Clone()
	}
	return out
}

// Stats is a point-in-time snapshot for /api/stats.
type Stats struct {
	Connections     int `json:"connections"`
	Participants    int `json:"participants"`
	Channels        int `json:"channels"`
	Messages        int `json:"messages"`
	PendingExpiries int `json:"pendingExpiries"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	s := Stats{
		Connections:  len(h.clients),
		Participants: len(h.participants),
		Channels:     h.dir.Len(),
		Messages:     h.store.Len(),
	}
	h.mu.Unlock()
	s.PendingExpiries = h.expiry.Pending()
	return s
}

// Register adds c before any of its events can be read, so a join is
// never processed for a connection the hub does not know about. It reports
// false and closes c when the hub is full or stopped.
func (h *Hub) Register(c *Client) bool {
	return h.addClient(c)
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
