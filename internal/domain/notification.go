package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Data      Map       `json:"data"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Map alias for JSONB data
type Map map[string]interface{}

// Notification type strings used across the negotiation lifecycle.
const (
	NotificationTypeRequest   = "connection_request"
	NotificationTypeResponse  = "connection_response"
	NotificationTypeMessage   = "message"
	NotificationTypeProposal  = "proposal"
	NotificationTypeAccepted  = "proposal_accepted"
	NotificationTypeConfirmed = "meetup_confirmed"
	NotificationTypeCancelled = "meetup_cancelled"
)

// Notifier delivers a notification to one user. Implementations must be
// best-effort: a delivery failure never fails the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typeStr, title, body string, data map[string]interface{}) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, userID uuid.UUID, typeStr, title, body string, data map[string]interface{}) error
	GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID uuid.UUID) error
	GetFCMToken(ctx context.Context, userID uuid.UUID) (string, error)
}
