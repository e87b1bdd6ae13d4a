package model

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusAway   Status = "away"
	StatusBusy   Status = "busy"
)

// Valid reports whether s is a known presence status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAway, StatusBusy:
		return true
	}
	return false
}

// Participant is the identity bound to one live connection.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Status   Status    `json:"status"`
	Avatar   string    `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}
