package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusAccepted  ConnectionStatus = "accepted"
	ConnectionStatusDeclined  ConnectionStatus = "declined"
	ConnectionStatusCancelled ConnectionStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s ConnectionStatus) Terminal() bool {
	return s == ConnectionStatusDeclined || s == ConnectionStatusCancelled
}

type ConnectionKind string

const (
	ConnectionKindPairwise    ConnectionKind = "pairwise"
	ConnectionKindGroupMember ConnectionKind = "group_member"
)

// Connection is the authoritative record of a pairing (or one joiner's
// membership in a host-owned group activity) and its negotiated meetup.
type Connection struct {
	ID          uuid.UUID `json:"id"`
	RequesterID uuid.UUID `json:"requester_id"`
	// TargetID is the receiving party; for group members it is the host.
	TargetID    uuid.UUID        `json:"target_id"`
	Kind        ConnectionKind   `json:"kind"`
	ActivityID  *uuid.UUID       `json:"activity_id,omitempty"`
	Status      ConnectionStatus `json:"status"`
	AgreedTime  *time.Time       `json:"agreed_time,omitempty"`
	AgreedPlace *Place           `json:"agreed_place,omitempty"`
	Confirmed   bool             `json:"confirmed"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	// For API responses
	User *UserResponse `json:"user,omitempty"`
}

// IsParty reports whether userID is one of the connection's parties.
func (c *Connection) IsParty(userID uuid.UUID) bool {
	return c.RequesterID == userID || c.TargetID == userID
}

// Other returns the counterparty of userID.
func (c *Connection) Other(userID uuid.UUID) uuid.UUID {
	if c.RequesterID == userID {
		return c.TargetID
	}
	return c.RequesterID
}

// Confirmable reports whether the meetup can be confirmed: the connection
// is accepted, both an agreed time and an agreed place exist, and it has
// not been confirmed already.
func (c *Connection) Confirmable() bool {
	return c.Status == ConnectionStatusAccepted &&
		c.AgreedTime != nil &&
		c.AgreedPlace != nil &&
		!c.Confirmed
}

// Activity is a host-owned group event that group-member connections
// attach to, optionally bounded by a participant cap.
type Activity struct {
	ID     uuid.UUID `json:"id"`
	HostID uuid.UUID `json:"host_id"`
	Title  string    `json:"title"`
	// MaxParticipants caps accepted group members; zero means unbounded.
	MaxParticipants int       `json:"max_participants"`
	CreatedAt       time.Time `json:"created_at"`
}

// Roster partitions an activity's group-member connections by status.
type Roster struct {
	Going   []*Connection `json:"going"`
	Waiting []*Connection `json:"waiting"`
}

type ConnectionRepository interface {
	CreateConnection(ctx context.Context, requesterID, targetID uuid.UUID, kind ConnectionKind, activityID *uuid.UUID) (*Connection, error)
	GetConnectionByID(ctx context.Context, connectionID uuid.UUID) (*Connection, error)
	GetConnectionsForUser(ctx context.Context, userID uuid.UUID, status ConnectionStatus, limit, offset int) ([]*Connection, error)
	UpdateConnectionStatus(ctx context.Context, connectionID uuid.UUID, status ConnectionStatus) (*Connection, error)
	// AcceptGroupMember transitions a pending group-member connection to
	// accepted, re-reading the activity's accepted count under a row lock
	// so near-simultaneous accepts cannot exceed the cap.
	AcceptGroupMember(ctx context.Context, connectionID uuid.UUID) (*Connection, error)
	CancelConnection(ctx context.Context, connectionID uuid.UUID) (*Connection, error)
	SetAgreedTime(ctx context.Context, connectionID uuid.UUID, when time.Time) (*Connection, error)
	SetAgreedPlace(ctx context.Context, connectionID uuid.UUID, place Place) (*Connection, error)
	SetConfirmed(ctx context.Context, connectionID uuid.UUID) (*Connection, error)

	CreateActivity(ctx context.Context, hostID uuid.UUID, title string, maxParticipants int) (*Activity, error)
	GetActivityByID(ctx context.Context, activityID uuid.UUID) (*Activity, error)
	ListRoster(ctx context.Context, activityID uuid.UUID) (*Roster, error)
}
