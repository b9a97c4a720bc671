package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is an immutable, ordered entry in a connection's log. Creation
// order is the only ordering key. Archived messages disappear from active
// views but are never erased.
type Message struct {
	ID           uuid.UUID `json:"id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	// SenderID is uuid.Nil for system-generated notices.
	SenderID   uuid.UUID  `json:"sender_id"`
	Body       string     `json:"body"`
	IsSystem   bool       `json:"is_system"`
	CreatedAt  time.Time  `json:"created_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// Payload is the decoded negotiation value, when the body carries one.
	// Populated on read, never stored.
	Payload *MeetupPayload `json:"payload,omitempty"`
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, connectionID, senderID uuid.UUID, body string, isSystem bool) (*Message, error)
	GetMessageByID(ctx context.Context, messageID uuid.UUID) (*Message, error)
	// GetActiveMessages lists unarchived messages in creation order. It
	// must fall back to an unfiltered listing against schemas that predate
	// the archived_at column.
	GetActiveMessages(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*Message, error)
	// UpdateMessageBody rewrites the body only; identity and timestamp are
	// preserved. Used to flip a payload's sub-status after acceptance.
	UpdateMessageBody(ctx context.Context, messageID uuid.UUID, body string) (*Message, error)
	// ArchiveMessages soft-deletes messages older than cutoff. Idempotent:
	// already-archived rows are left untouched.
	ArchiveMessages(ctx context.Context, connectionID uuid.UUID, cutoff time.Time) (int64, error)
}
