package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/pkg/apperr"
)

// systemTimeFormat renders agreed instants in system notices.
const systemTimeFormat = "Mon, Jan 2 2006 at 15:04 MST"

// ConnectionService owns the connection lifecycle: pending -> accepted or
// declined or cancelled, accepted -> cancelled. Declined and cancelled are
// terminal; retrying means creating a new connection.
type ConnectionService struct {
	repo     ConnectionRepository
	messages MessageRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewConnectionService(repo ConnectionRepository, messages MessageRepository, notifier Notifier, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{
		repo:     repo,
		messages: messages,
		notifier: notifier,
		logger:   logger,
	}
}

// Request creates a pending pairwise connection. The store enforces
// uniqueness of the unordered pair; an existing non-declined connection
// surfaces as DuplicateRequest rather than a second record.
func (s *ConnectionService) Request(ctx context.Context, requesterID, targetID uuid.UUID) (*Connection, error) {
	if requesterID == targetID {
		return nil, apperr.InvalidArg("cannot connect with self")
	}

	conn, err := s.repo.CreateConnection(ctx, requesterID, targetID, ConnectionKindPairwise, nil)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, targetID, NotificationTypeRequest, "New connection request", "Someone wants to meet up with you", Map{
		"connection_id": conn.ID.String(),
	})
	return conn, nil
}

// JoinActivity creates a pending group-member connection from userID to
// the activity's host.
func (s *ConnectionService) JoinActivity(ctx context.Context, userID, activityID uuid.UUID) (*Connection, error) {
	activity, err := s.repo.GetActivityByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.HostID == userID {
		return nil, apperr.InvalidArg("host cannot join own activity")
	}

	conn, err := s.repo.CreateConnection(ctx, userID, activity.HostID, ConnectionKindGroupMember, &activityID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, activity.HostID, NotificationTypeRequest, "New join request", fmt.Sprintf("Someone wants to join %q", activity.Title), Map{
		"connection_id": conn.ID.String(),
		"activity_id":   activityID.String(),
	})
	return conn, nil
}

// Respond accepts or declines a pending connection. Only the target (the
// host, for group members) may respond. Group accepts go through the
// capacity-checked repository path.
func (s *ConnectionService) Respond(ctx context.Context, userID, connectionID uuid.UUID, accept bool) (*Connection, error) {
	conn, err := s.repo.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if conn.TargetID != userID {
		return nil, apperr.Unauthorized("only the recipient can respond to this request")
	}
	if conn.Status != ConnectionStatusPending {
		return nil, apperr.InvalidTransition("connection is not pending")
	}

	var updated *Connection
	switch {
	case accept && conn.Kind == ConnectionKindGroupMember:
		updated, err = s.repo.AcceptGroupMember(ctx, connectionID)
	case accept:
		updated, err = s.repo.UpdateConnectionStatus(ctx, connectionID, ConnectionStatusAccepted)
	default:
		updated, err = s.repo.UpdateConnectionStatus(ctx, connectionID, ConnectionStatusDeclined)
	}
	if err != nil {
		return nil, err
	}

	outcome := "declined"
	if accept {
		outcome = "accepted"
	}
	s.notify(ctx, updated.RequesterID, NotificationTypeResponse, "Request "+outcome, "Your request was "+outcome, Map{
		"connection_id": updated.ID.String(),
	})
	return updated, nil
}

// ApplyProposal writes an accepted payload's value into the connection's
// agreed fields. Status is untouched; concurrent acceptances of the same
// kind resolve to whichever write the store applied last.
func (s *ConnectionService) ApplyProposal(ctx context.Context, connectionID uuid.UUID, payload *MeetupPayload) (*Connection, error) {
	if !payload.Valid() {
		return nil, apperr.MalformedPayload("proposal payload is malformed")
	}

	switch payload.Kind {
	case PayloadKindTime:
		return s.repo.SetAgreedTime(ctx, connectionID, *payload.When)
	case PayloadKindLocation:
		return s.repo.SetAgreedPlace(ctx, connectionID, *payload.Place)
	}
	return nil, apperr.MalformedPayload("unknown proposal kind")
}

// Confirm marks the meetup as confirmed and appends a system notice
// summarizing the agreed time and place.
func (s *ConnectionService) Confirm(ctx context.Context, userID, connectionID uuid.UUID) (*Connection, *Message, error) {
	conn, err := s.repo.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}

	if !conn.IsParty(userID) {
		return nil, nil, apperr.Unauthorized("not a party to this connection")
	}
	if !conn.Confirmable() {
		return nil, nil, apperr.InvalidTransition("meetup is not confirmable: needs an accepted connection with agreed time and place, not yet confirmed")
	}

	updated, err := s.repo.SetConfirmed(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}

	notice := fmt.Sprintf("Meetup confirmed for %s at %s",
		updated.AgreedTime.Format(systemTimeFormat), formatPlace(updated.AgreedPlace))
	msg, err := s.messages.CreateMessage(ctx, connectionID, uuid.Nil, notice, true)
	if err != nil {
		return nil, nil, err
	}

	s.notify(ctx, updated.Other(userID), NotificationTypeConfirmed, "Meetup confirmed", notice, Map{
		"connection_id": updated.ID.String(),
	})
	return updated, msg, nil
}

// Cancel transitions any non-terminal connection to cancelled, clears the
// confirmed flag and appends a system notice carrying the reason and, when
// a meetup had been agreed, what was called off.
func (s *ConnectionService) Cancel(ctx context.Context, userID, connectionID uuid.UUID, reason string) (*Connection, *Message, error) {
	conn, err := s.repo.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}

	if !conn.IsParty(userID) {
		return nil, nil, apperr.Unauthorized("not a party to this connection")
	}
	if conn.Status.Terminal() {
		return nil, nil, apperr.InvalidTransition("connection is already closed")
	}

	updated, err := s.repo.CancelConnection(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}

	notice := "Meetup cancelled"
	if reason != "" {
		notice += ": " + reason
	}
	if conn.AgreedTime != nil && conn.AgreedPlace != nil {
		notice += fmt.Sprintf(" (was %s at %s)",
			conn.AgreedTime.Format(systemTimeFormat), formatPlace(conn.AgreedPlace))
	}
	msg, err := s.messages.CreateMessage(ctx, connectionID, uuid.Nil, notice, true)
	if err != nil {
		return nil, nil, err
	}

	s.notify(ctx, updated.Other(userID), NotificationTypeCancelled, "Meetup cancelled", notice, Map{
		"connection_id": updated.ID.String(),
	})
	return updated, msg, nil
}

// GetConnection returns the connection if userID is a party to it.
func (s *ConnectionService) GetConnection(ctx context.Context, userID, connectionID uuid.UUID) (*Connection, error) {
	conn, err := s.repo.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsParty(userID) {
		return nil, apperr.Unauthorized("not a party to this connection")
	}
	return conn, nil
}

func (s *ConnectionService) ListConnections(ctx context.Context, userID uuid.UUID, status ConnectionStatus, limit, offset int) ([]*Connection, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.GetConnectionsForUser(ctx, userID, status, limit, offset)
}

func (s *ConnectionService) CreateActivity(ctx context.Context, hostID uuid.UUID, title string, maxParticipants int) (*Activity, error) {
	if maxParticipants < 0 {
		return nil, apperr.InvalidArg("max participants cannot be negative")
	}
	return s.repo.CreateActivity(ctx, hostID, title, maxParticipants)
}

func (s *ConnectionService) GetRoster(ctx context.Context, activityID uuid.UUID) (*Roster, error) {
	return s.repo.ListRoster(ctx, activityID)
}

func (s *ConnectionService) notify(ctx context.Context, userID uuid.UUID, typeStr, title, body string, data Map) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, typeStr, title, body, data); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("user_id", userID.String()),
			zap.String("type", typeStr),
			zap.Error(err),
		)
	}
}

func formatPlace(p *Place) string {
	if p == nil {
		return ""
	}
	if p.Address != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Address)
	}
	return p.Name
}
