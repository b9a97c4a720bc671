package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/middleware"
	"github.com/meetsy/backend/internal/reconcile"
	"github.com/meetsy/backend/pkg/response"
	"github.com/meetsy/backend/pkg/validator"
)

// MeetupHandler exposes the negotiation protocol: proposals, acceptance,
// confirmation and cancellation.
type MeetupHandler struct {
	meetupService *domain.MeetupService
	connService   *domain.ConnectionService
	feed          *FeedManager
	logger        *zap.Logger
}

func NewMeetupHandler(meetupService *domain.MeetupService, connService *domain.ConnectionService, feed *FeedManager, logger *zap.Logger) *MeetupHandler {
	return &MeetupHandler{
		meetupService: meetupService,
		connService:   connService,
		feed:          feed,
		logger:        logger,
	}
}

// ProposeTime handles POST /connections/{connectionId}/propose-time
func (h *MeetupHandler) ProposeTime(w http.ResponseWriter, r *http.Request) {
	userID, connID, ok := h.params(w, r)
	if !ok {
		return
	}

	var req struct {
		When time.Time `json:"when"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	if errs := validator.ValidateProposalTime(req.When, time.Now()); errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	msg, err := h.meetupService.ProposeTime(r.Context(), userID, connID, req.When)
	if err != nil {
		h.logger.Warn("propose time failed", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.publishMessage(r, connID, reconcile.MessageInserted(msg))
	response.Created(w, msg)
}

// ProposeLocation handles POST /connections/{connectionId}/propose-location
func (h *MeetupHandler) ProposeLocation(w http.ResponseWriter, r *http.Request) {
	userID, connID, ok := h.params(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    string  `json:"name"`
		Address string  `json:"address"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	if errs := validator.ValidatePlace(req.Name, req.Address, req.Lat, req.Lng); errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	msg, err := h.meetupService.ProposeLocation(r.Context(), userID, connID, domain.Place{
		Name:    validator.SanitizeString(req.Name, 200),
		Address: validator.SanitizeString(req.Address, 500),
		Lat:     req.Lat,
		Lng:     req.Lng,
	})
	if err != nil {
		h.logger.Warn("propose location failed", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.publishMessage(r, connID, reconcile.MessageInserted(msg))
	response.Created(w, msg)
}

// AcceptPayload handles POST /connections/{connectionId}/accept/{messageId}
func (h *MeetupHandler) AcceptPayload(w http.ResponseWriter, r *http.Request) {
	userID, connID, ok := h.params(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		response.BadRequest(w, "invalid message id")
		return
	}

	msg, conn, err := h.meetupService.AcceptPayload(r.Context(), userID, connID, messageID)
	if err != nil {
		h.logger.Warn("accept payload failed",
			zap.String("connection_id", connID.String()),
			zap.String("message_id", messageID.String()),
			zap.Error(err),
		)
		response.AppError(w, err)
		return
	}

	h.feed.Publish(reconcile.MessageUpdated(msg), conn.RequesterID, conn.TargetID)
	h.feed.Publish(reconcile.ConnectionUpdated(conn), conn.RequesterID, conn.TargetID)
	response.OK(w, map[string]interface{}{
		"message":    msg,
		"connection": conn,
	})
}

// ConfirmMeetup handles POST /connections/{connectionId}/confirm
func (h *MeetupHandler) ConfirmMeetup(w http.ResponseWriter, r *http.Request) {
	userID, connID, ok := h.params(w, r)
	if !ok {
		return
	}

	conn, msg, err := h.connService.Confirm(r.Context(), userID, connID)
	if err != nil {
		h.logger.Warn("confirm failed", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.feed.Publish(reconcile.ConnectionUpdated(conn), conn.RequesterID, conn.TargetID)
	h.feed.Publish(reconcile.MessageInserted(msg), conn.RequesterID, conn.TargetID)
	response.OK(w, conn)
}

// CancelMeetup handles POST /connections/{connectionId}/cancel
func (h *MeetupHandler) CancelMeetup(w http.ResponseWriter, r *http.Request) {
	userID, connID, ok := h.params(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional; a bare cancel carries no reason.
	_ = json.NewDecoder(r.Body).Decode(&req)

	conn, msg, err := h.connService.Cancel(r.Context(), userID, connID, validator.SanitizeString(req.Reason, 500))
	if err != nil {
		h.logger.Warn("cancel failed", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.feed.Publish(reconcile.ConnectionUpdated(conn), conn.RequesterID, conn.TargetID)
	h.feed.Publish(reconcile.MessageInserted(msg), conn.RequesterID, conn.TargetID)
	response.OK(w, conn)
}

func (h *MeetupHandler) params(w http.ResponseWriter, r *http.Request) (userID, connID uuid.UUID, ok bool) {
	userID, authed := middleware.GetUserID(r.Context())
	if !authed {
		response.Unauthorized(w, "not authenticated")
		return uuid.Nil, uuid.Nil, false
	}

	connID, err := uuid.Parse(chi.URLParam(r, "connectionId"))
	if err != nil {
		response.BadRequest(w, "invalid connection id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, connID, true
}

func (h *MeetupHandler) publishMessage(r *http.Request, connID uuid.UUID, ev reconcile.ChangeEvent) {
	userID, _ := middleware.GetUserID(r.Context())
	conn, err := h.connService.GetConnection(r.Context(), userID, connID)
	if err != nil {
		return
	}
	h.feed.Publish(ev, conn.RequesterID, conn.TargetID)
}
