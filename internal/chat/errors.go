// Package chat holds the in-memory chat state: channels, messages,
// typing sets, emotes and whiteboards.
//
// None of the types here are safe for concurrent use. They are owned by
// ws.Hub, which serializes every access behind its mutex.
package chat

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidName   = errors.New("invalid name")
	ErrProtected     = errors.New("protected")
	ErrInvalidPolicy = errors.New("invalid expiry policy")
)
