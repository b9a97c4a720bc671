package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/middleware"
	"github.com/meetsy/backend/internal/reconcile"
	"github.com/meetsy/backend/pkg/response"
	"github.com/meetsy/backend/pkg/validator"
)

// ActivityHandler exposes the capacity-bounded group variant: hosts create
// activities, joiners pile on, the host accepts up to the cap.
type ActivityHandler struct {
	connService *domain.ConnectionService
	feed        *FeedManager
	logger      *zap.Logger
}

func NewActivityHandler(connService *domain.ConnectionService, feed *FeedManager, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		connService: connService,
		feed:        feed,
		logger:      logger,
	}
}

// CreateActivity handles POST /activities
func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Title           string `json:"title"`
		MaxParticipants int    `json:"max_participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	if errs := validator.ValidateActivityTitle(req.Title); errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	activity, err := h.connService.CreateActivity(r.Context(), userID, validator.SanitizeString(req.Title, 150), req.MaxParticipants)
	if err != nil {
		h.logger.Warn("create activity failed", zap.Error(err))
		response.AppError(w, err)
		return
	}

	response.Created(w, activity)
}

// JoinActivity handles POST /activities/{activityId}/join
func (h *ActivityHandler) JoinActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	activityID, err := uuid.Parse(chi.URLParam(r, "activityId"))
	if err != nil {
		response.BadRequest(w, "invalid activity id")
		return
	}

	conn, err := h.connService.JoinActivity(r.Context(), userID, activityID)
	if err != nil {
		h.logger.Warn("join activity failed", zap.String("activity_id", activityID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.feed.Publish(reconcile.ConnectionUpdated(conn), conn.RequesterID, conn.TargetID)
	response.Created(w, conn)
}

// GetRoster handles GET /activities/{activityId}/roster
func (h *ActivityHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r.Context()); !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	activityID, err := uuid.Parse(chi.URLParam(r, "activityId"))
	if err != nil {
		response.BadRequest(w, "invalid activity id")
		return
	}

	roster, err := h.connService.GetRoster(r.Context(), activityID)
	if err != nil {
		h.logger.Error("failed to load roster", zap.String("activity_id", activityID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	response.OK(w, roster)
}
