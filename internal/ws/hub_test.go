package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chatcore/internal/clock"
	"github.com/chatcore/internal/mocks"
	"github.com/chatcore/internal/model"
	"github.com/chatcore/internal/signaling"
	"github.com/chatcore/internal/storage"
	"github.com/chatcore/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	hub   *Hub
	clock *clock.FakeClock
	files *mocks.MockStore
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	x := &harness{t: t, clock: clock.Fake(t0), files: mocks.NewMockStore(ctrl)}
	o := Options{Clock: x.clock, Attachments: x.files, SendBuffer: 128}
	for _, fn := range opts {
		fn(&o)
	}
	x.hub = NewHub(o)
	return x
}

// connect registers a connection and joins it under name. The welcome and
// the user-joined echoes are drained from every client.
func (x *harness) connect(id, name string, others ...*Client) *Client {
	x.t.Helper()
	c := newClient(x.hub, nil, id)
	x.hub.addClient(c)
	x.send(c, EventJoin, JoinPayload{Name: name})
	require.NotEmpty(x.t, ofType(drain(c), EventWelcome))
	for _, o := range others {
		drain(o)
	}
	return c
}

func (x *harness) send(c *Client, t EventType, payload any) {
	x.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(x.t, err)
	x.hub.HandleMessage(context.Background(), c, IncomingMessage{Type: t, Payload: raw})
}

func drain(c *Client) []OutgoingMessage {
	var out []OutgoingMessage
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func ofType(msgs []OutgoingMessage, t EventType) []OutgoingMessage {
	var out []OutgoingMessage
	for _, m := range msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func errorOf(t *testing.T, msgs []OutgoingMessage) ErrorPayload {
	t.Helper()
	errs := ofType(msgs, EventError)
	require.Len(t, errs, 1)
	return errs[0].Payload.(ErrorPayload)
}

// post sends a text message and returns it as the author saw it.
func (x *harness) post(c *Client, channelID, text string, attachments ...model.Attachment) *model.Message {
	x.t.Helper()
	x.send(c, EventSendMessage, SendMessagePayload{ChannelID: channelID, Text: text, Attachments: attachments})
	msgs := ofType(drain(c), EventSendMessage)
	require.Len(x.t, msgs, 1)
	return msgs[0].Payload.(*model.Message)
}

func TestHub_EventsBeforeJoinAreRejected(t *testing.T) {
	x := newHarness(t)
	c := newClient(x.hub, nil, "a")
	x.hub.addClient(c)

	x.send(c, EventSendMessage, SendMessagePayload{ChannelID: "general", Text: "hi"})
	require.Equal(t, codeNotJoined, errorOf(t, drain(c)).Code)
}

func TestHub_JoinSnapshot(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := newClient(x.hub, nil, "b")
	x.hub.addClient(b)
	x.send(b, EventJoin, JoinPayload{Name: "Bob", Color: "#00ff00"})

	welcome := ofType(drain(b), EventWelcome)
	require.Len(t, welcome, 1)
	w := welcome[0].Payload.(WelcomePayload)
	require.Equal(t, "b", w.Self.ID)
	require.Equal(t, model.StatusActive, w.Self.Status)
	require.Len(t, w.Participants, 2)
	require.Equal(t, "general", w.Channels[0].ID)

	joined := ofType(drain(a), EventUserJoined)
	require.Len(t, joined, 1)
	require.Equal(t, "Bob", joined[0].Payload.(model.Participant).Name)

	x.send(b, EventJoin, JoinPayload{Name: "Bob"})
	require.Equal(t, codeAlreadyExists, errorOf(t, drain(b)).Code)
}

func TestHub_InvalidAndUnknownEvents(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")

	x.send(a, EventSendMessage, map[string]any{"text": "no channel"})
	require.Equal(t, codeInvalid, errorOf(t, drain(a)).Code)

	x.send(a, EventSendMessage, SendMessagePayload{ChannelID: "general", Text: "   "})
	require.Equal(t, codeInvalid, errorOf(t, drain(a)).Code)

	x.send(a, EventJoin, JoinPayload{Name: "x", Color: "red"})
	require.Equal(t, codeInvalid, errorOf(t, drain(a)).Code)

	x.hub.HandleMessage(context.Background(), a, IncomingMessage{Type: "launch-rockets", RequestID: "r1"})
	e := errorOf(t, drain(a))
	require.Equal(t, codeUnknownEvent, e.Code)
	require.Equal(t, "r1", e.RequestID)

	x.hub.HandleMessage(context.Background(), a, IncomingMessage{Type: EventCallOffer, Payload: json.RawMessage(`{"targetId":"b","sdp":{"type":"bogus","sdp":""}}`)})
	require.Equal(t, codeInvalid, errorOf(t, drain(a)).Code)
}

// Default expiry removes the message after 24h and every
// participant hears about it.
func TestHub_MessageExpiresAfterDefaultPolicy(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)

	m := x.post(a, "general", "hello")
	require.Equal(t, t0.Add(24*time.Hour), *m.ExpiresAt)
	require.Len(t, ofType(drain(b), EventSendMessage), 1)
	require.Equal(t, 1, x.hub.Stats().PendingExpiries)

	x.clock.Advance(24*time.Hour - time.Second)
	require.Empty(t, drain(b))

	x.clock.Advance(time.Second)
	for _, c := range []*Client{a, b} {
		del := ofType(drain(c), EventMessageDeleted)
		require.Len(t, del, 1)
		require.Equal(t, MessageDeletedPayload{ChannelID: "general", MessageID: m.ID}, del[0].Payload)
	}
	require.Equal(t, 0, x.hub.Stats().Messages)
	require.Equal(t, 0, x.hub.Stats().PendingExpiries)
}

func TestHub_ChannelPolicyAppliesToNewMessages(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	x.send(a, EventCreateChannel, CreateChannelPayload{Name: "Team Standup"})
	created := ofType(drain(a), EventChannelCreated)
	require.Len(t, created, 1)
	require.Equal(t, "team-standup", created[0].Payload.(*model.Channel).ID)

	policy := model.ExpiryHour
	x.send(a, EventUpdateChannelSettings, ChannelSettingsPayload{ChannelID: "team-standup", Expiry: &policy})
	require.Len(t, ofType(drain(a), EventChannelSettingsUpdated), 1)

	m := x.post(a, "team-standup", "standup notes")
	require.Equal(t, t0.Add(time.Hour), *m.ExpiresAt)

	x.clock.Advance(time.Hour)
	require.Len(t, ofType(drain(a), EventMessageDeleted), 1)

	x.send(a, EventUpdateChannelSettings, map[string]any{"channelId": "team-standup", "expiry": "2w"})
	require.Equal(t, codeInvalid, errorOf(t, drain(a)).Code)
}

// Both sides asking for a dm land in the same channel, and a
// third participant never sees it.
func TestHub_DirectChannelIsSharedAndPrivate(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	c := x.connect("c", "Carol", a, b)

	x.send(a, EventCreateDM, CreateDMPayload{TargetID: "b"})
	fromA := ofType(drain(a), EventDMCreated)
	fromB := ofType(drain(b), EventDMCreated)
	require.Len(t, fromA, 1)
	require.Len(t, fromB, 1)

	x.send(b, EventCreateDM, CreateDMPayload{TargetID: "a"})
	again := ofType(drain(b), EventDMCreated)
	require.Len(t, again, 1)
	require.Equal(t, fromA[0].Payload.(*model.Channel).ID, again[0].Payload.(*model.Channel).ID)
	require.Empty(t, drain(a), "repeat request is answered to the requester only")

	dmID := fromA[0].Payload.(*model.Channel).ID
	require.Empty(t, drain(c))
	for _, ch := range x.hub.dir.VisibleTo("c") {
		require.NotEqual(t, dmID, ch.ID)
	}

	x.post(a, dmID, "psst")
	require.Len(t, ofType(drain(b), EventSendMessage), 1)
	require.Empty(t, drain(c))

	x.send(c, EventSendMessage, SendMessagePayload{ChannelID: dmID, Text: "let me in"})
	require.Equal(t, codeNotAuthorized, errorOf(t, drain(c)).Code)
	x.send(c, EventJoinChannel, ChannelRef{ChannelID: dmID})
	require.Equal(t, codeNotAuthorized, errorOf(t, drain(c)).Code)
	x.send(c, EventDeleteChannel, ChannelRef{ChannelID: dmID})
	require.Equal(t, codeNotAuthorized, errorOf(t, drain(c)).Code)

	x.send(a, EventCreateDM, CreateDMPayload{TargetID: "ghost"})
	require.Equal(t, codeNotFound, errorOf(t, drain(a)).Code)
}

func TestHub_GroupChannel(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	c := x.connect("c", "Carol", a, b)

	x.send(a, EventCreateGroup, CreateGroupPayload{Name: "Design Crew", MemberIDs: []string{"b"}})
	got := ofType(drain(b), EventGroupCreated)
	require.Len(t, got, 1)
	g := got[0].Payload.(*model.Channel)
	require.Equal(t, []string{"a", "b"}, g.Members)
	require.Len(t, ofType(drain(a), EventGroupCreated), 1)
	require.Empty(t, drain(c))

	x.send(a, EventCreateGroup, CreateGroupPayload{Name: "Ghosts", MemberIDs: []string{"nobody"}})
	require.Equal(t, codeNotFound, errorOf(t, drain(a)).Code)
}

// Deleting a pinned, reacted message produces exactly one
// message-deleted and leaves nothing behind.
func TestHub_DeletePinnedReactedMessage(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)

	m := x.post(a, "general", "look", model.Attachment{URL: "/api/files/cat.png", Name: "cat.png"})
	x.send(b, EventAddReaction, ReactionRequest{ChannelID: "general", MessageID: m.ID, Emoji: "👍"})
	x.send(a, EventTogglePin, MessageRef{ChannelID: "general", MessageID: m.ID})
	drain(a)
	drain(b)

	x.files.EXPECT().Delete(gomock.Any(), "/api/files/cat.png").Return(errors.New("disk on fire"))
	x.send(a, EventDeleteMessage, MessageRef{ChannelID: "general", MessageID: m.ID})

	for _, c := range []*Client{a, b} {
		msgs := drain(c)
		require.Len(t, msgs, 1, "one event, no partial updates")
		require.Equal(t, EventMessageDeleted, msgs[0].Type)
	}
	require.Empty(t, x.hub.store.Pinned("general"))
	require.Empty(t, x.hub.store.History("general"))
	require.Equal(t, 0, x.hub.Stats().PendingExpiries)

	// The timer was cancelled: nothing fires later.
	x.clock.Advance(48 * time.Hour)
	require.Empty(t, drain(b))
}

func TestHub_OnlyAuthorMayEditOrDelete(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	m := x.post(a, "general", "original")
	drain(b)

	x.send(b, EventEditMessage, EditMessagePayload{ChannelID: "general", MessageID: m.ID, Text: "hijacked"})
	require.Equal(t, codeNotAuthorized, errorOf(t, drain(b)).Code)
	x.send(b, EventDeleteMessage, MessageRef{ChannelID: "general", MessageID: m.ID})
	require.Equal(t, codeNotAuthorized, errorOf(t, drain(b)).Code)
	require.Empty(t, drain(a), "rejections are not broadcast")

	got, err := x.hub.store.Get("general", m.ID)
	require.NoError(t, err)
	require.Equal(t, "original", got.Body)
	require.False(t, got.Edited)

	x.send(a, EventEditMessage, EditMessagePayload{ChannelID: "general", MessageID: m.ID, Text: "fixed"})
	edited := ofType(drain(b), EventMessageEdited)
	require.Len(t, edited, 1)
	require.Equal(t, "fixed", edited[0].Payload.(MessageEditedPayload).Text)
	deadline, ok := x.hub.expiry.Deadline(m.ID)
	require.True(t, ok)
	require.Equal(t, t0.Add(24*time.Hour), deadline, "edit keeps the original deadline")

	x.send(a, EventDeleteMessage, MessageRef{ChannelID: "general", MessageID: "nope"})
	require.Equal(t, codeNotFound, errorOf(t, drain(a)).Code)
}

func TestHub_ReactionsBroadcastFullMapOnce(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	m := x.post(a, "general", "vote")
	drain(b)

	x.send(b, EventAddReaction, ReactionRequest{ChannelID: "general", MessageID: m.ID, Emoji: "+1"})
	x.send(b, EventAddReaction, ReactionRequest{ChannelID: "general", MessageID: m.ID, Emoji: "+1"})
	added := ofType(drain(a), EventReactionAdded)
	require.Len(t, added, 1)
	require.Equal(t, map[string][]string{"+1": {"b"}}, added[0].Payload.(ReactionsPayload).Reactions)

	x.send(a, EventRemoveReaction, ReactionRequest{ChannelID: "general", MessageID: m.ID, Emoji: "+1"})
	require.Empty(t, ofType(drain(a), EventReactionRemoved), "removing an absent reaction is a no-op")

	x.send(b, EventRemoveReaction, ReactionRequest{ChannelID: "general", MessageID: m.ID, Emoji: "+1"})
	removed := ofType(drain(a), EventReactionRemoved)
	require.Len(t, removed, 1)
	require.Empty(t, removed[0].Payload.(ReactionsPayload).Reactions)
}

func TestHub_PinnedList(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	m1 := x.post(a, "general", "one")
	x.post(a, "general", "two")
	m3 := x.post(a, "general", "three")

	x.send(a, EventTogglePin, MessageRef{ChannelID: "general", MessageID: m3.ID})
	x.send(a, EventTogglePin, MessageRef{ChannelID: "general", MessageID: m1.ID})
	toggled := ofType(drain(a), EventMessagePinToggled)
	require.Len(t, toggled, 2)
	require.True(t, toggled[0].Payload.(PinToggledPayload).Pinned)

	x.send(a, EventGetPinned, ChannelRef{ChannelID: "general"})
	pinned := ofType(drain(a), EventPinnedMessages)
	require.Len(t, pinned, 1)
	msgs := pinned[0].Payload.(PinnedMessagesPayload).Messages
	require.Len(t, msgs, 2)
	require.Equal(t, m1.ID, msgs[0].ID)
	require.Equal(t, m3.ID, msgs[1].ID)
}

func TestHub_TypingStaysInsideTheAudience(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	c := x.connect("c", "Carol", a, b)
	x.send(a, EventCreateDM, CreateDMPayload{TargetID: "b"})
	dmID := ofType(drain(a), EventDMCreated)[0].Payload.(*model.Channel).ID
	drain(b)

	x.send(a, EventJoinChannel, ChannelRef{ChannelID: dmID})
	require.Len(t, ofType(drain(a), EventChannelHistory), 1)
	x.send(a, EventTyping, TypingRequest{IsTyping: true})

	typing := ofType(drain(b), EventTyping)
	require.Len(t, typing, 1)
	require.Equal(t, TypingPayload{ChannelID: dmID, Names: []string{"Alice"}}, typing[0].Payload)
	require.Empty(t, drain(c), "typing in a dm never reaches outsiders")

	// Sending clears the flag and re-broadcasts the list.
	x.post(a, dmID, "done")
	typing = ofType(drain(b), EventTyping)
	require.Len(t, typing, 1)
	require.Empty(t, typing[0].Payload.(TypingPayload).Names)
}

func TestHub_JoiningAnotherChannelClearsTyping(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	x.send(a, EventCreateChannel, CreateChannelPayload{Name: "random"})
	drain(b)

	x.send(a, EventJoinChannel, ChannelRef{ChannelID: "general"})
	x.send(a, EventTyping, TypingRequest{IsTyping: true})
	require.Equal(t, []string{"Alice"}, ofType(drain(b), EventTyping)[0].Payload.(TypingPayload).Names)

	x.send(a, EventJoinChannel, ChannelRef{ChannelID: "random"})
	typing := ofType(drain(b), EventTyping)
	require.Len(t, typing, 1)
	require.Equal(t, TypingPayload{ChannelID: "general", Names: []string{}}, typing[0].Payload)

	// Typing somewhere else moves the flag.
	x.send(a, EventTyping, TypingRequest{ChannelID: "general", IsTyping: true})
	x.send(a, EventTyping, TypingRequest{ChannelID: "random", IsTyping: true})
	typing = ofType(drain(b), EventTyping)
	require.Len(t, typing, 3)
	require.Equal(t, TypingPayload{ChannelID: "general", Names: []string{}}, typing[1].Payload)
	require.Equal(t, TypingPayload{ChannelID: "random", Names: []string{"Alice"}}, typing[2].Payload)
}

func TestHub_DeleteChannelCascades(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)

	x.send(a, EventDeleteChannel, ChannelRef{ChannelID: "general"})
	require.Equal(t, codeProtected, errorOf(t, drain(a)).Code)

	x.send(a, EventCreateChannel, CreateChannelPayload{Name: "Scratch"})
	x.post(a, "scratch", "file", model.Attachment{URL: "/api/files/notes.txt"})
	x.send(a, EventWhiteboardDraw, WhiteboardDrawPayload{ChannelID: "scratch", Stroke: json.RawMessage(`{"x":1}`)})
	x.send(b, EventStartScreenShare, ChannelRef{ChannelID: "scratch"})
	drain(a)
	drain(b)
	require.Equal(t, 1, x.hub.Stats().PendingExpiries)

	x.files.EXPECT().Delete(gomock.Any(), "/api/files/notes.txt").Return(nil)
	x.send(b, EventDeleteChannel, ChannelRef{ChannelID: "scratch"})
	for _, c := range []*Client{a, b} {
		deleted := ofType(drain(c), EventChannelDeleted)
		require.Len(t, deleted, 1)
	}
	require.Equal(t, 0, x.hub.Stats().PendingExpiries)
	require.Empty(t, x.hub.boards.Strokes("scratch"))
	require.Empty(t, x.hub.relay.Sharers("scratch"))

	x.send(a, EventDeleteChannel, ChannelRef{ChannelID: "scratch"})
	require.Equal(t, codeNotFound, errorOf(t, drain(a)).Code)
	x.send(a, EventCreateChannel, CreateChannelPayload{Name: "no/slashes"})
	require.Equal(t, codeInvalidName, errorOf(t, drain(a)).Code)
}

// An offer to a participant who already left goes nowhere and
// produces no error.
func TestHub_SignalToDisconnectedTargetIsDropped(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	x.hub.removeClient(b)
	require.Len(t, ofType(drain(a), EventUserLeft), 1)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	x.send(a, EventCallOffer, SDPRequest{TargetID: "b", SDP: &offer})
	require.Empty(t, drain(a))
}

func TestHub_SignalingIsForwardedVerbatim(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	c := x.connect("c", "Carol", a, b)

	x.send(a, EventCallInitiate, CallRequest{TargetID: "b", Media: "video"})
	incoming := ofType(drain(b), EventType(signaling.EventCallIncoming))
	require.Len(t, incoming, 1)
	require.Equal(t, signaling.Signal{FromID: "a", Media: "video"}, incoming[0].Payload)

	x.send(b, EventCallAnswer, CallRequest{TargetID: "a"})
	require.Len(t, ofType(drain(a), EventType(signaling.EventCallAnswered)), 1)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\ns=answer\r\n"}
	x.send(b, EventCallAnswerSDP, SDPRequest{TargetID: "a", SDP: &answer})
	got := ofType(drain(a), EventCallAnswerSDP)
	require.Len(t, got, 1)
	sig := got[0].Payload.(signaling.Signal)
	require.Equal(t, "b", sig.FromID)
	require.Equal(t, answer, *sig.SDP)

	mid := "0"
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host", SDPMid: &mid}
	x.send(a, EventWebRTCICECandidate, ICERequest{TargetID: "b", Candidate: &cand})
	ice := ofType(drain(b), EventWebRTCICECandidate)
	require.Len(t, ice, 1)
	require.Equal(t, cand.Candidate, ice[0].Payload.(signaling.Signal).Candidate.Candidate)
	require.Empty(t, drain(c))

	x.send(a, EventCallInitiate, CallRequest{TargetID: "a"})
	require.Equal(t, codeInvalid, errorOf(t, drain(a)).Code)
}

func TestHub_DisconnectTearsDownEverything(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)

	x.send(a, EventJoinChannel, ChannelRef{ChannelID: "general"})
	x.send(a, EventTyping, TypingRequest{IsTyping: true})
	x.send(a, EventStartScreenShare, ChannelRef{ChannelID: "general"})
	x.send(a, EventCallInitiate, CallRequest{TargetID: "b", Media: "audio"})
	x.send(b, EventCallAnswer, CallRequest{TargetID: "a"})
	drain(a)
	got := drain(b)
	require.Len(t, ofType(got, EventScreenShareStarted), 1)

	x.hub.removeClient(a)
	msgs := drain(b)
	require.Len(t, ofType(msgs, EventTyping), 1)
	require.Empty(t, ofType(msgs, EventTyping)[0].Payload.(TypingPayload).Names)
	require.Len(t, ofType(msgs, EventScreenShareStopped), 1)
	ended := ofType(msgs, EventType(signaling.EventCallEnded))
	require.Len(t, ended, 1)
	require.Equal(t, "disconnected", ended[0].Payload.(signaling.Signal).Reason)
	left := ofType(msgs, EventUserLeft)
	require.Len(t, left, 1)
	require.Equal(t, UserLeftPayload{ID: "a", Name: "Alice"}, left[0].Payload)

	_, inCall := x.hub.relay.InCall("b")
	require.False(t, inCall)
	require.Empty(t, x.hub.typing.IDs("general"))

	// Removing twice is harmless.
	x.hub.removeClient(a)
	require.Empty(t, drain(b))
}

func TestHub_ScreenShareSnapshotOnJoin(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	x.send(a, EventStartScreenShare, ChannelRef{ChannelID: "general"})
	drain(a)

	b := newClient(x.hub, nil, "b")
	x.hub.addClient(b)
	x.send(b, EventJoin, JoinPayload{Name: "Bob"})
	w := ofType(drain(b), EventWelcome)[0].Payload.(WelcomePayload)
	require.Equal(t, []ScreenShare{{ChannelID: "general", ParticipantID: "a", Name: "Alice"}}, w.ScreenShares)

	x.send(a, EventStopScreenShare, StopScreenSharePayload{})
	require.Len(t, ofType(drain(b), EventScreenShareStopped), 1)
}

func TestHub_ProfileUpdateKeepsHistorySnapshots(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)
	m := x.post(a, "general", "before rename")
	drain(b)

	name := "Alicia"
	status := model.StatusBusy
	x.send(a, EventUpdateProfile, UpdateProfilePayload{Name: &name, Status: &status})
	upd := ofType(drain(b), EventUserProfileUpdated)
	require.Len(t, upd, 1)
	p := upd[0].Payload.(model.Participant)
	require.Equal(t, "Alicia", p.Name)
	require.Equal(t, model.StatusBusy, p.Status)

	got, err := x.hub.store.Get("general", m.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", got.AuthorName)

	blank := "  "
	x.send(a, EventUpdateProfile, UpdateProfilePayload{Name: &blank})
	require.Equal(t, codeInvalidName, errorOf(t, drain(a)).Code)
}

func TestHub_Emotes(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)

	x.send(a, EventCreateEmote, CreateEmotePayload{Name: "parrot", URL: "/api/files/parrot.gif"})
	require.Len(t, ofType(drain(b), EventEmoteCreated), 1)

	x.send(b, EventDeleteEmote, DeleteEmotePayload{Name: "parrot"})
	require.Equal(t, codeNotAuthorized, errorOf(t, drain(b)).Code)

	x.files.EXPECT().Delete(gomock.Any(), "/api/files/parrot.gif").Return(nil)
	x.send(a, EventDeleteEmote, DeleteEmotePayload{Name: "parrot"})
	require.Equal(t, []OutgoingMessage{{Type: EventEmoteDeleted, Payload: EmoteDeletedPayload{Name: "parrot"}}}, drain(b))
}

func TestHub_Whiteboard(t *testing.T) {
	x := newHarness(t)
	a := x.connect("a", "Alice")
	b := x.connect("b", "Bob", a)

	x.send(a, EventWhiteboardDraw, WhiteboardDrawPayload{ChannelID: "general", Stroke: json.RawMessage(`{"p":[1,2]}`)})
	require.Len(t, ofType(drain(b), EventWhiteboardDraw), 1)

	x.send(b, EventJoinChannel, ChannelRef{ChannelID: "general"})
	hist := ofType(drain(b), EventChannelHistory)[0].Payload.(ChannelHistoryPayload)
	require.Len(t, hist.Whiteboard, 1)

	x.send(b, EventWhiteboardClear, ChannelRef{ChannelID: "general"})
	require.Len(t, ofType(drain(a), EventWhiteboardClear), 1)
}

func TestHub_RateLimit(t *testing.T) {
	x := newHarness(t, func(o *Options) {
		o.Limiter = memory.New(storage.Limit{Max: 1, Window: time.Minute})
	})
	a := x.connect("a", "Alice")

	x.post(a, "general", "first")
	x.send(a, EventSendMessage, SendMessagePayload{ChannelID: "general", Text: "second"})
	require.Equal(t, codeRateLimited, errorOf(t, drain(a)).Code)

	// Typing is not counted.
	x.send(a, EventTyping, TypingRequest{ChannelID: "general", IsTyping: true})
	require.Empty(t, ofType(drain(a), EventError))
}

func TestHub_SlowClientIsClosed(t *testing.T) {
	x := newHarness(t, func(o *Options) { o.SendBuffer = 1 })
	a := newClient(x.hub, nil, "a")
	x.hub.addClient(a)
	x.send(a, EventJoin, JoinPayload{Name: "Alice"}) // welcome fills the buffer

	b := newClient(x.hub, nil, "b")
	x.hub.addClient(b)
	x.send(b, EventJoin, JoinPayload{Name: "Bob"}) // user-joined overflows a

	select {
	case <-a.done:
	default:
		t.Fatal("slow client was not closed")
	}
}

func TestHub_ConnectionLimit(t *testing.T) {
	x := newHarness(t, func(o *Options) { o.MaxConns = 1 })
	a := newClient(x.hub, nil, "a")
	x.hub.addClient(a)
	b := newClient(x.hub, nil, "b")
	x.hub.addClient(b)

	select {
	case <-b.done:
	default:
		t.Fatal("connection over the limit was accepted")
	}
	require.Equal(t, 1, x.hub.Stats().Connections)
}

func TestHub_RunAndShutdown(t *testing.T) {
	x := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		x.hub.Run(ctx)
		close(stopped)
	}()

	a := newClient(x.hub, nil, "a")
	require.True(t, x.hub.Register(a))
	require.Equal(t, 1, x.hub.Stats().Connections)

	cancel()
	<-stopped
	<-a.done
	require.Equal(t, 0, x.hub.Stats().Connections)
	// Register after shutdown closes the client instead of blocking.
	late := newClient(x.hub, nil, "late")
	require.False(t, x.hub.Register(late))
	<-late.done
}
