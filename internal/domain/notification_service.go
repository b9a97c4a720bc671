package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/fcm"
)

type NotificationService struct {
	repo      NotificationRepository
	fcmClient *fcm.Client
	logger    *zap.Logger
}

func NewNotificationService(repo NotificationRepository, fcmClient *fcm.Client, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:      repo,
		fcmClient: fcmClient,
		logger:    logger,
	}
}

func (s *NotificationService) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.GetNotifications(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	return s.repo.MarkNotificationRead(ctx, notificationID)
}

// Notify stores the notification and pushes it over FCM when configured.
// Push failures are logged, never propagated.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, typeStr, title, body string, data map[string]interface{}) error {
	if err := s.repo.CreateNotification(ctx, userID, typeStr, title, body, data); err != nil {
		return err
	}

	if s.fcmClient == nil {
		return nil
	}

	token, err := s.repo.GetFCMToken(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load fcm token", zap.String("user_id", userID.String()), zap.Error(err))
		return nil
	}
	if token == "" {
		return nil
	}

	strData := make(map[string]string, len(data)+1)
	for k, v := range data {
		strData[k] = fmt.Sprintf("%v", v)
	}
	strData["type"] = typeStr

	go func(t string) {
		_ = s.fcmClient.Send(context.Background(), t, title, body, strData)
	}(token)

	return nil
}
