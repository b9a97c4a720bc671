package reconcile

import (
	"github.com/google/uuid"

	"github.com/meetsy/backend/internal/domain"
)

// EventKind identifies what a change event carries.
type EventKind string

const (
	EventMessageInsert    EventKind = "message_insert"
	EventMessageUpdate    EventKind = "message_update"
	EventConnectionUpdate EventKind = "connection_update"
)

// ChangeEvent is one authoritative mutation delivered over the change
// feed, keyed by connection identity. Exactly one of Message/Connection is
// set, matching Kind.
type ChangeEvent struct {
	Kind         EventKind          `json:"kind"`
	ConnectionID uuid.UUID          `json:"connection_id"`
	Message      *domain.Message    `json:"message,omitempty"`
	Connection   *domain.Connection `json:"connection,omitempty"`
}

// MessageInserted builds an insert event for a freshly appended message.
func MessageInserted(msg *domain.Message) ChangeEvent {
	return ChangeEvent{Kind: EventMessageInsert, ConnectionID: msg.ConnectionID, Message: msg}
}

// MessageUpdated builds an update event for an in-place body change.
func MessageUpdated(msg *domain.Message) ChangeEvent {
	return ChangeEvent{Kind: EventMessageUpdate, ConnectionID: msg.ConnectionID, Message: msg}
}

// ConnectionUpdated builds a whole-record replace event.
func ConnectionUpdated(conn *domain.Connection) ChangeEvent {
	return ChangeEvent{Kind: EventConnectionUpdate, ConnectionID: conn.ID, Connection: conn}
}
