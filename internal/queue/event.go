// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Session event kinds.
const (
	EventLogin     = "session.login"
	EventLogout    = "session.logout"
	EventRevokeAll = "session.revoke_all"
)

// SessionEvent is published when a session is created or revoked.  It is an
// audit record; it never carries token material.
type SessionEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username,omitempty"`
	Revoked    int    `json:"revoked,omitempty"`
	Failed     int    `json:"failed,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// NewSessionEvent stamps a new event with a ULID and the given time.
func NewSessionEvent(typ string, userID int64, at time.Time) SessionEvent {
	return SessionEvent{
		ID:         ulid.Make().String(),
		Type:       typ,
		UserID:     userID,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
