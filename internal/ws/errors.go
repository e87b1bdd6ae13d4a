package ws

import (
	"errors"

	"github.com/chatcore/internal/chat"
	"github.com/chatcore/internal/signaling"
)

var (
	errNotJoined      = errors.New("join first")
	errAlreadyJoined  = errors.New("already joined")
	errInvalidPayload = errors.New("invalid payload")
	errUnknownEvent   = errors.New("unknown event type")
	errRateLimited    = errors.New("too many events")
	errInternal       = errors.New("internal error")
)

const (
	codeNotFound      = "not_found"
	codeNotAuthorized = "not_authorized"
	codeAlreadyExists = "already_exists"
	codeInvalidName   = "invalid_name"
	codeProtected     = "protected"
	codeInvalid       = "invalid_payload"
	codeNotJoined     = "not_joined"
	codeUnknownEvent  = "unknown_event"
	codeRateLimited   = "rate_limited"
	codeInternal      = "internal"
)

// errorCode maps an error to the code clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return codeNotFound
	case errors.Is(err, chat.ErrNotAuthorized):
		return codeNotAuthorized
	case errors.Is(err, chat.ErrAlreadyExists), errors.Is(err, errAlreadyJoined):
		return codeAlreadyExists
	case errors.Is(err, chat.ErrInvalidName):
		return codeInvalidName
	case errors.Is(err, chat.ErrProtected):
		return codeProtected
	case errors.Is(err, errInvalidPayload), errors.Is(err, chat.ErrInvalidPolicy), errors.Is(err, signaling.ErrSelfCall):
		return codeInvalid
	case errors.Is(err, errNotJoined):
		return codeNotJoined
	case errors.Is(err, errUnknownEvent):
		return codeUnknownEvent
	case errors.Is(err, errRateLimited):
		return codeRateLimited
	default:
		return codeInternal
	}
}
