package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/middleware"
	"github.com/meetsy/backend/internal/reconcile"
	"github.com/meetsy/backend/pkg/response"
)

type ConnectionHandler struct {
	connService *domain.ConnectionService
	feed        *FeedManager
	logger      *zap.Logger
}

func NewConnectionHandler(connService *domain.ConnectionService, feed *FeedManager, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connService: connService,
		feed:        feed,
		logger:      logger,
	}
}

// RequestConnection handles POST /connections/request
func (h *ConnectionHandler) RequestConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		TargetUserID string `json:"target_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	targetID, err := uuid.Parse(req.TargetUserID)
	if err != nil {
		response.BadRequest(w, "invalid target user id")
		return
	}

	conn, err := h.connService.Request(r.Context(), userID, targetID)
	if err != nil {
		h.logger.Warn("connection request failed", zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.feed.Publish(reconcile.ConnectionUpdated(conn), conn.RequesterID, conn.TargetID)
	response.Created(w, conn)
}

// RespondToConnection handles POST /connections/respond
func (h *ConnectionHandler) RespondToConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		ConnectionID string `json:"connection_id"`
		Accept       bool   `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	connID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		response.BadRequest(w, "invalid connection id")
		return
	}

	conn, err := h.connService.Respond(r.Context(), userID, connID, req.Accept)
	if err != nil {
		h.logger.Warn("connection respond failed", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	h.feed.Publish(reconcile.ConnectionUpdated(conn), conn.RequesterID, conn.TargetID)
	response.OK(w, conn)
}

// GetConnection handles GET /connections/{connectionId}
func (h *ConnectionHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	connID, err := uuid.Parse(chi.URLParam(r, "connectionId"))
	if err != nil {
		response.BadRequest(w, "invalid connection id")
		return
	}

	conn, err := h.connService.GetConnection(r.Context(), userID, connID)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.OK(w, conn)
}

// ListConnections handles GET /connections
func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	status := domain.ConnectionStatus(r.URL.Query().Get("status"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	conns, err := h.connService.ListConnections(r.Context(), userID, status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list connections", zap.Error(err))
		response.AppError(w, err)
		return
	}

	response.OK(w, conns)
}
