package ws

import (
	"fmt"
	"strings"

	"github.com/chatcore/internal/chat"
	"github.com/chatcore/internal/logger"
	"github.com/chatcore/internal/model"
)

func (h *Hub) buildRoutes() map[EventType]route {
	v := h.validate
	return map[EventType]route{
		EventJoin:                  on(v, h.join),
		EventJoinChannel:           on(v, h.joinChannel),
		EventSendMessage:           on(v, h.sendMessage).limit(),
		EventEditMessage:           on(v, h.editMessage).limit(),
		EventDeleteMessage:         on(v, h.deleteMessage).limit(),
		EventTogglePin:             on(v, h.togglePin).limit(),
		EventAddReaction:           on(v, h.addReaction).limit(),
		EventRemoveReaction:        on(v, h.removeReaction).limit(),
		EventGetPinned:             on(v, h.getPinned),
		EventTyping:                on(v, h.setTyping),
		EventCreateChannel:         on(v, h.createChannel).limit(),
		EventDeleteChannel:         on(v, h.deleteChannel).limit(),
		EventUpdateChannelSettings: on(v, h.updateChannelSettings).limit(),
		EventCreateDM:              on(v, h.createDM).limit(),
		EventCreateGroup:           on(v, h.createGroup).limit(),
		EventUpdateProfile:         on(v, h.updateProfile).limit(),
		EventCreateEmote:           on(v, h.createEmote).limit(),
		EventDeleteEmote:           on(v, h.deleteEmote).limit(),
		EventCallInitiate:          on(v, h.callInitiate).limit(),
		EventCallAnswer:            on(v, h.callAnswer),
		EventCallReject:            on(v, h.callReject),
		EventCallEnd:               on(v, h.callEnd),
		EventCallOffer:             on(v, h.forwardSDP(EventCallOffer)),
		EventCallAnswerSDP:         on(v, h.forwardSDP(EventCallAnswerSDP)),
		EventCallICECandidate:      on(v, h.forwardICE(EventCallICECandidate)),
		EventWebRTCOffer:           on(v, h.forwardSDP(EventWebRTCOffer)),
		EventWebRTCAnswer:          on(v, h.forwardSDP(EventWebRTCAnswer)),
		EventWebRTCICECandidate:    on(v, h.forwardICE(EventWebRTCICECandidate)),
		EventStartScreenShare:      on(v, h.startScreenShare),
		EventStopScreenShare:       on(v, h.stopScreenShare),
		EventWhiteboardDraw:        on(v, h.whiteboardDraw),
		EventWhiteboardClear:       on(v, h.whiteboardClear),
	}
}

// --- presence ---

func (h *Hub) join(c *Client, p *JoinPayload, _ *effects) error {
	if _, ok := h.participants[c.id]; ok {
		return errAlreadyJoined
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return fmt.Errorf("join: %w", chat.ErrInvalidName)
	}
	status := p.Status
	if status == "" {
		status = model.StatusActive
	}
	self := &model.Participant{
		ID:       c.id,
		Name:     name,
		Color:    p.Color,
		Status:   status,
		Avatar:   p.Avatar,
		JoinedAt: h.now(),
	}
	h.participants[c.id] = self

	var shares []ScreenShare
	for _, ch := range h.dir.VisibleTo(c.id) {
		for _, id := range h.relay.Sharers(ch.ID) {
			shares = append(shares, ScreenShare{ChannelID: ch.ID, ParticipantID: id, Name: h.participants[id].Name})
		}
	}
	h.sendLocked(c, OutgoingMessage{Type: EventWelcome, Payload: WelcomePayload{
		Self:         *self,
		Participants: h.participantListLocked(),
		Channels:     cloneChannels(h.dir.VisibleTo(c.id)),
		Emotes:       h.emotes.List(),
		ScreenShares: shares,
	}})
	h.toAllLocked(EventUserJoined, *self, c.id)
	logger.Infof("ws participant joined conn=%s name=%q", c.id, name)
	return nil
}

func (h *Hub) updateProfile(c *Client, p *UpdateProfilePayload, _ *effects) error {
	self := h.participants[c.id]
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return fmt.Errorf("update profile: %w", chat.ErrInvalidName)
		}
		self.Name = name
	}
	if p.Color != nil {
		self.Color = *p.Color
	}
	if p.Status != nil {
		self.Status = *p.Status
	}
	if p.Avatar != nil {
		self.Avatar = *p.Avatar
	}
	h.toAllLocked(EventUserProfileUpdated, *self, "")
	return nil
}

func (h *Hub) joinChannel(c *Client, p *ChannelRef, _ *effects) error {
	ch, err := h.visibleLocked(p.ChannelID, c.id)
	if err != nil {
		return err
	}
	if prev, ok := h.current[c.id]; ok && prev != ch.ID && h.typing.Set(prev, c.id, false) {
		h.broadcastTypingLocked(prev)
	}
	h.current[c.id] = ch.ID
	h.sendLocked(c, OutgoingMessage{Type: EventChannelHistory, Payload: ChannelHistoryPayload{
		ChannelID:  ch.ID,
		Messages:   cloneMessages(h.store.History(ch.ID)),
		Whiteboard: h.boards.Strokes(ch.ID),
		Sharers:    h.relay.Sharers(ch.ID),
	}})
	return nil
}

// setTyping keeps a participant typing in at most one channel.
func (h *Hub) setTyping(c *Client, p *TypingRequest, _ *effects) error {
	channelID := p.ChannelID
	if channelID == "" {
		channelID = h.current[c.id]
	}
	if channelID == "" {
		return fmt.Errorf("typing: no current channel: %w", errInvalidPayload)
	}
	if _, err := h.visibleLocked(channelID, c.id); err != nil {
		return err
	}
	var changed []string
	if p.IsTyping {
		changed = h.typing.ClearOthers(c.id, channelID)
	}
	if h.typing.Set(channelID, c.id, p.IsTyping) {
		changed = append(changed, channelID)
	}
	for _, id := range changed {
		h.broadcastTypingLocked(id)
	}
	return nil
}

// --- messages ---

func (h *Hub) sendMessage(c *Client, p *SendMessagePayload, fx *effects) error {
	ch, err := h.visibleLocked(p.ChannelID, c.id)
	if err != nil {
		return err
	}
	body := strings.TrimSpace(p.Text)
	if body == "" && len(p.Attachments) == 0 {
		return fmt.Errorf("message: empty: %w", errInvalidPayload)
	}
	kind := p.Kind
	if kind == "" {
		kind = model.MessageText
		if len(p.Attachments) > 0 {
			kind = model.MessageFile
		}
	}
	m := h.store.Append(ch, h.participants[c.id], body, kind, chat.Extras{
		Attachments: p.Attachments,
		ReplyTo:     p.ReplyTo,
		Spoiler:     p.IsSpoiler,
		AuthorColor: p.Color,
	}, h.now())
	h.toAudienceLocked(ch, EventSendMessage, m.Clone())

	if !h.expiry.Schedule(m.ID, ch.ID, *m.ExpiresAt) {
		// Deadline already passed: remove now instead of arming a timer.
		if removed, err := h.store.RemoveAny(ch.ID, m.ID); err == nil {
			h.removedLocked(removed, fx)
		}
	}
	if h.typing.Set(ch.ID, c.id, false) {
		h.broadcastTypingLocked(ch.ID)
	}
	return nil
}

func (h *Hub) editMessage(c *Client, p *EditMessagePayload, _ *effects) error {
	if _, err := h.visibleLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	body := strings.TrimSpace(p.Text)
	if body == "" {
		return fmt.Errorf("edit message: empty: %w", errInvalidPayload)
	}
	m, err := h.store.Edit(p.ChannelID, p.MessageID, c.id, body)
	if err != nil {
		return err
	}
	h.toChannelLocked(m.ChannelID, EventMessageEdited, MessageEditedPayload{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Text:      m.Body,
		Edited:    true,
	})
	return nil
}

func (h *Hub) deleteMessage(c *Client, p *MessageRef, fx *effects) error {
	if _, err := h.visibleLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	m, err := h.store.Remove(p.ChannelID, p.MessageID, c.id)
	if err != nil {
		return err
	}
	h.removedLocked(m, fx)
	return nil
}

func (h *Hub) togglePin(c *Client, p *MessageRef, _ *effects) error {
	if _, err := h.visibleLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	m, err := h.store.TogglePin(p.ChannelID, p.MessageID)
	if err != nil {
		return err
	}
	h.toChannelLocked(m.ChannelID, EventMessagePinToggled, PinToggledPayload{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Pinned:    m.Pinned,
	})
	return nil
}

func (h *Hub) getPinned(c *Client, p *ChannelRef, _ *effects) error {
	ch, err := h.visibleLocked(p.ChannelID, c.id)
	if err != nil {
		return err
	}
	h.sendLocked(c, OutgoingMessage{Type: EventPinnedMessages, Payload: PinnedMessagesPayload{
		ChannelID: ch.ID,
		Messages:  cloneMessages(h.store.Pinned(ch.ID)),
	}})
	return nil
}

func (h *Hub) addReaction(c *Client, p *ReactionRequest, _ *effects) error {
	if _, err := h.visibleLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	m, changed, err := h.store.AddReaction(p.ChannelID, p.MessageID, c.id, p.Emoji)
	if err != nil || !changed {
		return err
	}
	h.broadcastReactionsLocked(EventReactionAdded, m)
	return nil
}

func (h *Hub) removeReaction(c *Client, p *ReactionRequest, _ *effects) error {
	if _, err := h.visibleLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	m, changed, err := h.store.RemoveReaction(p.ChannelID, p.MessageID, c.id, p.Emoji)
	if err != nil || !changed {
		return err
	}
	h.broadcastReactionsLocked(EventReactionRemoved, m)
	return nil
}

func (h *Hub) broadcastReactionsLocked(t EventType, m *model.Message) {
	reactions := model.CloneReactions(m.Reactions)
	if reactions == nil {
		reactions = map[string][]string{}
	}
	h.toChannelLocked(m.ChannelID, t, ReactionsPayload{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Reactions: reactions,
	})
}

// --- channels ---

func (h *Hub) createChannel(c *Client, p *CreateChannelPayload, _ *effects) error {
	ch, err := h.dir.Create(p.Name, c.id, h.now())
	if err != nil {
		return err
	}
	h.toAudienceLocked(ch, EventChannelCreated, ch.Clone())
	logger.Infof("ws channel created id=%s by=%s", ch.ID, c.id)
	return nil
}

// deleteChannel cascades: messages (timers, attachments), typing, pins,
// whiteboard and screen shares go with the channel.
func (h *Hub) deleteChannel(c *Client, p *ChannelRef, fx *effects) error {
	if _, err := h.manageableLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	ch, err := h.dir.Delete(p.ChannelID)
	if err != nil {
		return err
	}
	for _, m := range h.store.DropChannel(ch.ID) {
		h.expiry.Cancel(m.ID)
		fx.deleteAttachments(m)
	}
	h.typing.Drop(ch.ID)
	h.boards.Clear(ch.ID)
	h.relay.DropChannel(ch.ID)
	for conn, cur := range h.current {
		if cur == ch.ID {
			delete(h.current, conn)
		}
	}
	h.toAudienceLocked(ch, EventChannelDeleted, ChannelDeletedPayload{ChannelID: ch.ID})
	logger.Infof("ws channel deleted id=%s by=%s", ch.ID, c.id)
	return nil
}

func (h *Hub) updateChannelSettings(c *Client, p *ChannelSettingsPayload, _ *effects) error {
	if _, err := h.manageableLocked(p.ChannelID, c.id); err != nil {
		return err
	}
	ch, err := h.dir.UpdateSettings(p.ChannelID, p.Expiry, p.Persistent)
	if err != nil {
		return err
	}
	h.toAudienceLocked(ch, EventChannelSettingsUpdated, ch.Clone())
	return nil
}

// createDM is idempotent: asking again returns the existing channel to the
// requester only.
func (h *Hub) createDM(c *Client, p *CreateDMPayload, _ *effects) error {
	if p.TargetID == c.id {
		return fmt.Errorf("create dm with self: %w", errInvalidPayload)
	}
	if _, ok := h.participants[p.TargetID]; !ok {
		return fmt.Errorf("create dm with %s: %w", p.TargetID, chat.ErrNotFound)
	}
	ch, created := h.dir.EnsureDirect(c.id, p.TargetID, h.now())
	if created {
		h.toAudienceLocked(ch, EventDMCreated, ch.Clone())
		return nil
	}
	h.sendLocked(c, OutgoingMessage{Type: EventDMCreated, Payload: ch.Clone()})
	return nil
}

func (h *Hub) createGroup(c *Client, p *CreateGroupPayload, _ *effects) error {
	for _, id := range p.MemberIDs {
		if _, ok := h.participants[id]; !ok {
			return fmt.Errorf("create group: member %s: %w", id, chat.ErrNotFound)
		}
	}
	ch, err := h.dir.CreateGroup(p.Name, c.id, p.MemberIDs, h.now())
	if err != nil {
		return err
	}
	h.toAudienceLocked(ch, EventGroupCreated, ch.Clone())
	return nil
}

// --- emotes ---

func (h *Hub) createEmote(c *Client, p *CreateEmotePayload, _ *effects) error {
	em, err := h.emotes.Add(p.Name, p.URL, c.id, h.now())
	if err != nil {
		return err
	}
	h.toAllLocked(EventEmoteCreated, *em, "")
	return nil
}

func (h *Hub) deleteEmote(c *Client, p *DeleteEmotePayload, fx *effects) error {
	em, err := h.emotes.Remove(p.Name, c.id)
	if err != nil {
		return err
	}
	fx.refs = append(fx.refs, em.URL)
	h.toAllLocked(EventEmoteDeleted, EmoteDeletedPayload{Name: em.Name}, "")
	return nil
}
