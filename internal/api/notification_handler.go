package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/middleware"
	"github.com/meetsy/backend/pkg/response"
)

type NotificationHandler struct {
	notifService *domain.NotificationService
	logger       *zap.Logger
}

func NewNotificationHandler(notifService *domain.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
		logger:       logger,
	}
}

// GetNotifications handles GET /notifications
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	notifications, err := h.notifService.GetNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to get notifications", zap.Error(err))
		response.AppError(w, err)
		return
	}

	response.OK(w, notifications)
}

// MarkRead handles POST /notifications/{notificationId}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r.Context()); !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	notificationID, err := uuid.Parse(chi.URLParam(r, "notificationId"))
	if err != nil {
		response.BadRequest(w, "invalid notification id")
		return
	}

	if err := h.notifService.MarkRead(r.Context(), notificationID); err != nil {
		response.AppError(w, err)
		return
	}

	response.NoContent(w)
}
