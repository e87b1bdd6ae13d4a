package ws

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/chatcore/internal/model"
)

type EventType string

// Client -> server.
const (
	EventJoin                  EventType = "join"
	EventJoinChannel           EventType = "join-channel"
	EventSendMessage           EventType = "message"
	EventEditMessage           EventType = "edit-message"
	EventDeleteMessage         EventType = "delete-message"
	EventTogglePin             EventType = "toggle-pin-message"
	EventAddReaction           EventType = "add-reaction"
	EventRemoveReaction        EventType = "remove-reaction"
	EventGetPinned             EventType = "get-pinned"
	EventTyping                EventType = "typing"
	EventCreateChannel         EventType = "create-channel"
	EventDeleteChannel         EventType = "delete-channel"
	EventUpdateChannelSettings EventType = "update-channel-settings"
	EventCreateDM              EventType = "create-dm"
	EventCreateGroup           EventType = "create-group"
	EventUpdateProfile         EventType = "update-profile"
	EventCreateEmote           EventType = "create-emote"
	EventDeleteEmote           EventType = "delete-emote"
	EventCallInitiate          EventType = "call-initiate"
	EventCallAnswer            EventType = "call-answer"
	EventCallReject            EventType = "call-reject"
	EventCallEnd               EventType = "call-end"
	EventCallOffer             EventType = "call-offer"
	EventCallAnswerSDP         EventType = "call-answer-sdp"
	EventCallICECandidate      EventType = "call-ice-candidate"
	EventStartScreenShare      EventType = "start-screen-share"
	EventStopScreenShare       EventType = "stop-screen-share"
	EventWebRTCOffer           EventType = "webrtc-offer"
	EventWebRTCAnswer          EventType = "webrtc-answer"
	EventWebRTCICECandidate    EventType = "webrtc-ice-candidate"
	EventWhiteboardDraw        EventType = "whiteboard-draw"
	EventWhiteboardClear       EventType = "whiteboard-clear"
)

// Server -> client. Events shared with the inbound set (message, typing,
// whiteboard-*, signaling echoes) reuse the constants above.
const (
	EventWelcome                EventType = "welcome"
	EventChannelHistory         EventType = "channel-history"
	EventPinnedMessages         EventType = "pinned-messages"
	EventMessageEdited          EventType = "message-edited"
	EventMessageDeleted         EventType = "message-deleted"
	EventMessagePinToggled      EventType = "message-pin-toggled"
	EventReactionAdded          EventType = "reaction-added"
	EventReactionRemoved        EventType = "reaction-removed"
	EventChannelCreated         EventType = "channel-created"
	EventChannelDeleted         EventType = "channel-deleted"
	EventChannelSettingsUpdated EventType = "channel-settings-updated"
	EventUserJoined             EventType = "user-joined"
	EventUserLeft               EventType = "user-left"
	EventUserProfileUpdated     EventType = "user-profile-updated"
	EventDMCreated              EventType = "dm-created"
	EventGroupCreated           EventType = "group-created"
	EventEmoteCreated           EventType = "emote-created"
	EventEmoteDeleted           EventType = "emote-deleted"
	EventScreenShareStarted     EventType = "screen-share-started"
	EventScreenShareStopped     EventType = "screen-share-stopped"
	EventError                  EventType = "error"
)

// IncomingMessage is what the client sends to the server. Payload is
// decoded into the struct registered for Type before any state is touched.
type IncomingMessage struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// --- Inbound payloads ---

type JoinPayload struct {
	Name   string       `json:"name" validate:"required,max=32"`
	Color  string       `json:"color" validate:"omitempty,hexcolor"`
	Status model.Status `json:"status" validate:"omitempty,oneof=active away busy"`
	Avatar string       `json:"avatar" validate:"omitempty,max=2048"`
}

type ChannelRef struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
}

type SendMessagePayload struct {
	ChannelID   string             `json:"channelId" validate:"required,max=128"`
	Text        string             `json:"text" validate:"max=4000"`
	Kind        model.MessageKind  `json:"kind" validate:"omitempty,oneof=text gif file emoji"`
	Attachments []model.Attachment `json:"attachments" validate:"max=10,dive"`
	ReplyTo     string             `json:"replyTo" validate:"max=128"`
	IsSpoiler   bool               `json:"isSpoiler"`
	Color       string             `json:"color" validate:"omitempty,hexcolor"`
}

type EditMessagePayload struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	Text      string `json:"text" validate:"required,max=4000"`
}

type MessageRef struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
}

type ReactionRequest struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	Emoji     string `json:"emoji" validate:"required,max=64"`
}

// TypingRequest with an empty ChannelID targets the connection's current channel.
type TypingRequest struct {
	ChannelID string `json:"channelId" validate:"max=128"`
	IsTyping  bool   `json:"isTyping"`
}

type CreateChannelPayload struct {
	Name string `json:"name" validate:"required,max=50"`
}

type ChannelSettingsPayload struct {
	ChannelID  string              `json:"channelId" validate:"required,max=128"`
	Expiry     *model.ExpiryPolicy `json:"expiry" validate:"omitempty,oneof=none 1h 6h 12h 24h 3d 7d"`
	Persistent *bool               `json:"persistent"`
}

type CreateDMPayload struct {
	TargetID string `json:"targetId" validate:"required,max=64"`
}

type CreateGroupPayload struct {
	Name      string   `json:"name" validate:"required,max=50"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,max=50,dive,required,max=64"`
}

// UpdateProfilePayload changes only the fields that are present.
type UpdateProfilePayload struct {
	Name   *string       `json:"name" validate:"omitempty,max=32"`
	Color  *string       `json:"color" validate:"omitempty,hexcolor"`
	Status *model.Status `json:"status" validate:"omitempty,oneof=active away busy"`
	Avatar *string       `json:"avatar" validate:"omitempty,max=2048"`
}

type CreateEmotePayload struct {
	Name string `json:"name" validate:"required,max=32"`
	URL  string `json:"url" validate:"required,max=2048"`
}

type DeleteEmotePayload struct {
	Name string `json:"name" validate:"required,max=32"`
}

type CallRequest struct {
	TargetID string `json:"targetId" validate:"required,max=64"`
	Media    string `json:"media" validate:"omitempty,oneof=audio video screen"`
}

type SDPRequest struct {
	TargetID string                     `json:"targetId" validate:"required,max=64"`
	SDP      *webrtc.SessionDescription `json:"sdp" validate:"required"`
}

type ICERequest struct {
	TargetID  string                   `json:"targetId" validate:"required,max=64"`
	Candidate *webrtc.ICECandidateInit `json:"candidate" validate:"required"`
}

type StopScreenSharePayload struct{}

type WhiteboardDrawPayload struct {
	ChannelID string          `json:"channelId" validate:"required,max=128"`
	Stroke    json.RawMessage `json:"stroke" validate:"required,max=16384"`
}

// --- Outbound payloads ---

// ScreenShare is one active share visible to the receiver.
type ScreenShare struct {
	ChannelID     string `json:"channelId"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name,omitempty"`
}

// WelcomePayload is the snapshot sent in reply to join, scoped to what
// the new participant may see.
type WelcomePayload struct {
	Self         model.Participant   `json:"self"`
	Participants []model.Participant `json:"participants"`
	Channels     []*model.Channel    `json:"channels"`
	Emotes       []model.Emote       `json:"emotes"`
	ScreenShares []ScreenShare       `json:"screenShares"`
}

type ChannelHistoryPayload struct {
	ChannelID  string            `json:"channelId"`
	Messages   []*model.Message  `json:"messages"`
	Whiteboard []json.RawMessage `json:"whiteboard"`
	Sharers    []string          `json:"sharers"`
}

type PinnedMessagesPayload struct {
	ChannelID string           `json:"channelId"`
	Messages  []*model.Message `json:"messages"`
}

// MessageEditedPayload is broadcast when a message is edited.
type MessageEditedPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Edited    bool   `json:"edited"`
}

// MessageDeletedPayload is broadcast when a message is deleted or expires.
type MessageDeletedPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

type PinToggledPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Pinned    bool   `json:"pinned"`
}

// ReactionsPayload carries the full reaction map after the change so
// clients reconcile by replacing theirs.
type ReactionsPayload struct {
	ChannelID string              `json:"channelId"`
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

// TypingPayload lists display names, never ids.
type TypingPayload struct {
	ChannelID string   `json:"channelId"`
	Names     []string `json:"names"`
}

type ChannelDeletedPayload struct {
	ChannelID string `json:"channelId"`
}

type UserLeftPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EmoteDeletedPayload struct {
	Name string `json:"name"`
}

type WhiteboardPayload struct {
	ChannelID string          `json:"channelId"`
	FromID    string          `json:"fromId"`
	Stroke    json.RawMessage `json:"stroke,omitempty"`
}

// ErrorPayload is sent only to the requester.
type ErrorPayload struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Type      EventType `json:"type,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}
