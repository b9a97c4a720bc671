package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/pkg/apperr"
)

// MeetupService is the negotiation protocol over the message log and the
// connection state machine: free-form chat, time/location proposals,
// payload acceptance. Counter-proposing is just another proposal; earlier
// payloads keep their displayed status.
type MeetupService struct {
	connections *ConnectionService
	messages    MessageRepository
	notifier    Notifier
	logger      *zap.Logger
}

func NewMeetupService(connections *ConnectionService, messages MessageRepository, notifier Notifier, logger *zap.Logger) *MeetupService {
	return &MeetupService{
		connections: connections,
		messages:    messages,
		notifier:    notifier,
		logger:      logger,
	}
}

// SendMessage appends a plain chat message to the connection's log.
func (s *MeetupService) SendMessage(ctx context.Context, userID, connectionID uuid.UUID, content string) (*Message, error) {
	conn, err := s.connections.GetConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status.Terminal() {
		return nil, apperr.InvalidTransition("connection is closed")
	}

	msg, err := s.messages.CreateMessage(ctx, connectionID, userID, content, false)
	if err != nil {
		return nil, err
	}

	s.notifyOther(ctx, conn, userID, NotificationTypeMessage, "New message", content)
	return msg, nil
}

// ProposeTime appends a pending time-proposal payload message.
func (s *MeetupService) ProposeTime(ctx context.Context, userID, connectionID uuid.UUID, when time.Time) (*Message, error) {
	return s.propose(ctx, userID, connectionID, &MeetupPayload{
		Kind:   PayloadKindTime,
		Status: PayloadStatusPending,
		When:   &when,
	})
}

// ProposeLocation appends a pending location-proposal payload message.
func (s *MeetupService) ProposeLocation(ctx context.Context, userID, connectionID uuid.UUID, place Place) (*Message, error) {
	return s.propose(ctx, userID, connectionID, &MeetupPayload{
		Kind:   PayloadKindLocation,
		Status: PayloadStatusPending,
		Place:  &place,
	})
}

func (s *MeetupService) propose(ctx context.Context, userID, connectionID uuid.UUID, payload *MeetupPayload) (*Message, error) {
	conn, err := s.connections.GetConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status.Terminal() {
		return nil, apperr.InvalidTransition("connection is closed")
	}

	body, err := EncodePayload(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedPayload, "failed to encode proposal", err)
	}

	msg, err := s.messages.CreateMessage(ctx, connectionID, userID, body, false)
	if err != nil {
		return nil, err
	}
	msg.Payload = payload

	s.notifyOther(ctx, conn, userID, NotificationTypeProposal, "New proposal", describeProposal(payload))
	return msg, nil
}

// AcceptPayload flips a proposal's sub-status to accepted and writes its
// value into the connection's agreed fields. Accepting an already-accepted
// payload is a no-op, not an error.
func (s *MeetupService) AcceptPayload(ctx context.Context, userID, connectionID, messageID uuid.UUID) (*Message, *Connection, error) {
	conn, err := s.connections.GetConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, nil, err
	}
	if conn.Status == ConnectionStatusCancelled {
		return nil, nil, apperr.InvalidTransition("connection is cancelled")
	}

	msg, err := s.messages.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.ConnectionID != connectionID {
		return nil, nil, apperr.NotFound("message does not belong to this connection")
	}

	payload := DecodePayload(msg.Body)
	if payload == nil {
		return nil, nil, apperr.MalformedPayload("message carries no proposal")
	}
	if payload.Status == PayloadStatusAccepted {
		msg.Payload = payload
		return msg, conn, nil
	}

	payload.Status = PayloadStatusAccepted
	body, err := EncodePayload(payload)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeMalformedPayload, "failed to re-encode proposal", err)
	}

	updatedMsg, err := s.messages.UpdateMessageBody(ctx, messageID, body)
	if err != nil {
		return nil, nil, err
	}
	updatedMsg.Payload = payload

	updatedConn, err := s.connections.ApplyProposal(ctx, connectionID, payload)
	if err != nil {
		return nil, nil, err
	}

	s.notifyOther(ctx, updatedConn, userID, NotificationTypeAccepted, "Proposal accepted", describeProposal(payload))
	return updatedMsg, updatedConn, nil
}

// ListMessages returns the connection's active (unarchived) messages in
// creation order, with payload bodies decoded for rendering. Bodies that
// fail to decode stay plain text.
func (s *MeetupService) ListMessages(ctx context.Context, userID, connectionID uuid.UUID, limit, offset int) ([]*Message, error) {
	if _, err := s.connections.GetConnection(ctx, userID, connectionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	msgs, err := s.messages.GetActiveMessages(ctx, connectionID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if !m.IsSystem {
			m.Payload = DecodePayload(m.Body)
		}
	}
	return msgs, nil
}

func (s *MeetupService) notifyOther(ctx context.Context, conn *Connection, userID uuid.UUID, typeStr, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, conn.Other(userID), typeStr, title, body, Map{
		"connection_id": conn.ID.String(),
	}); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("type", typeStr),
			zap.Error(err),
		)
	}
}

func describeProposal(p *MeetupPayload) string {
	switch p.Kind {
	case PayloadKindTime:
		return "Proposed time: " + p.When.Format(systemTimeFormat)
	case PayloadKindLocation:
		return "Proposed place: " + formatPlace(p.Place)
	}
	return "New proposal"
}
