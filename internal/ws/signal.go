package ws

import "github.com/chatcore/internal/signaling"

// Calls and negotiation go through the relay; only screen shares and the
// whiteboard are channel-visible state.

func (h *Hub) callInitiate(c *Client, p *CallRequest, _ *effects) error {
	media := p.Media
	if media == "" {
		media = "audio"
	}
	return h.relay.Initiate(c.id, p.TargetID, media)
}

func (h *Hub) callAnswer(c *Client, p *CallRequest, _ *effects) error {
	h.relay.Answer(c.id, p.TargetID)
	return nil
}

func (h *Hub) callReject(c *Client, p *CallRequest, _ *effects) error {
	h.relay.Reject(c.id, p.TargetID)
	return nil
}

func (h *Hub) callEnd(c *Client, p *CallRequest, _ *effects) error {
	h.relay.End(c.id, p.TargetID)
	return nil
}

// forwardSDP relays an offer or answer under the event name it arrived with.
// A vanished target is dropped without an error to the sender.
func (h *Hub) forwardSDP(t EventType) func(c *Client, p *SDPRequest, _ *effects) error {
	return func(c *Client, p *SDPRequest, _ *effects) error {
		h.relay.Forward(string(t), c.id, p.TargetID, signaling.Signal{SDP: p.SDP})
		return nil
	}
}

func (h *Hub) forwardICE(t EventType) func(c *Client, p *ICERequest, _ *effects) error {
	return func(c *Client, p *ICERequest, _ *effects) error {
		h.relay.Forward(string(t), c.id, p.TargetID, signaling.Signal{Candidate: p.Candidate})
		return nil
	}
}

func (h *Hub) startScreenShare(c *Client, p *ChannelRef, _ *effects) error {
	ch, err := h.visibleLocked(p.ChannelID, c.id)
	if err != nil {
		return err
	}
	name := h.participants[c.id].Name
	if prev, replaced := h.relay.StartShare(c.id, ch.ID); replaced {
		h.toChannelLocked(prev, EventScreenShareStopped, ScreenShare{ChannelID: prev, ParticipantID: c.id, Name: name})
	}
	h.toAudienceLocked(ch, EventScreenShareStarted, ScreenShare{ChannelID: ch.ID, ParticipantID: c.id, Name: name})
	return nil
}

func (h *Hub) stopScreenShare(c *Client, _ *StopScreenSharePayload, _ *effects) error {
	channelID, ok := h.relay.StopShare(c.id)
	if !ok {
		return nil
	}
	h.toChannelLocked(channelID, EventScreenShareStopped, ScreenShare{
		ChannelID:     channelID,
		ParticipantID: c.id,
		Name:          h.participants[c.id].Name,
	})
	return nil
}

func (h *Hub) whiteboardDraw(c *Client, p *WhiteboardDrawPayload, _ *effects) error {
	ch, err := h.visibleLocked(p.ChannelID, c.id)
	if err != nil {
		return err
	}
	h.boards.Draw(ch.ID, p.Stroke)
	h.toAudienceLocked(ch, EventWhiteboardDraw, WhiteboardPayload{ChannelID: ch.ID, FromID: c.id, Stroke: p.Stroke})
	return nil
}

func (h *Hub) whiteboardClear(c *Client, p *ChannelRef, _ *effects) error {
	ch, err := h.visibleLocked(p.ChannelID, c.id)
	if err != nil {
		return err
	}
	if !h.boards.Clear(ch.ID) {
		return nil
	}
	h.toAudienceLocked(ch, EventWhiteboardClear, WhiteboardPayload{ChannelID: ch.ID, FromID: c.id})
	return nil
}
