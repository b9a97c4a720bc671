package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/meetsy/backend/internal/domain"
)

// snapshotLimit caps how much history a fresh subscription replays.
const snapshotLimit = 200

// ServiceViewLoader builds feed snapshots from the domain services, so the
// same authorization checks apply to websocket subscriptions as to REST reads.
type ServiceViewLoader struct {
	connService   *domain.ConnectionService
	meetupService *domain.MeetupService
}

func NewServiceViewLoader(connService *domain.ConnectionService, meetupService *domain.MeetupService) *ServiceViewLoader {
	return &ServiceViewLoader{
		connService:   connService,
		meetupService: meetupService,
	}
}

func (l *ServiceViewLoader) LoadView(ctx context.Context, userID, connectionID uuid.UUID) (*domain.Connection, []*domain.Message, error) {
	conn, err := l.connService.GetConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, nil, err
	}

	msgs, err := l.meetupService.ListMessages(ctx, userID, connectionID, snapshotLimit, 0)
	if err != nil {
		return nil, nil, err
	}

	return conn, msgs, nil
}
