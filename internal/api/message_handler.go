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
	"github.com/meetsy/backend/pkg/validator"
)

type MessageHandler struct {
	meetupService *domain.MeetupService
	connService   *domain.ConnectionService
	feed          *FeedManager
	logger        *zap.Logger
}

func NewMessageHandler(meetupService *domain.MeetupService, connService *domain.ConnectionService, feed *FeedManager, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		meetupService: meetupService,
		connService:   connService,
		feed:          feed,
		logger:        logger,
	}
}

// HandleWebSocket upgrades the HTTP connection to the change feed
func (h *MessageHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.New(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),

		events:      make(chan reconcile.ChangeEvent, 64),
		subscribes:  make(chan uuid.UUID, 4),
		done:        make(chan struct{}),
		reconcilers: make(map[uuid.UUID]*reconcile.Reconciler),
	}

	h.feed.register <- client

	go client.WritePump()
	go client.Run(h.feed)
	go client.ReadPump(h.feed)
}

// SendMessage handles POST /connections/{connectionId}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	if errs := validator.ValidateMessageBody(req.Content); errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	msg, err := h.meetupService.SendMessage(r.Context(), userID, connID, req.Content)
	if err != nil {
		h.logger.Warn("send message failed", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	if conn, err := h.connService.GetConnection(r.Context(), userID, connID); err == nil {
		h.feed.Publish(reconcile.MessageInserted(msg), conn.RequesterID, conn.TargetID)
	}

	response.Created(w, msg)
}

// ListMessages handles GET /connections/{connectionId}/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
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

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	offset := (page - 1) * limit

	msgs, err := h.meetupService.ListMessages(r.Context(), userID, connID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list messages", zap.String("connection_id", connID.String()), zap.Error(err))
		response.AppError(w, err)
		return
	}

	response.OK(w, msgs)
}
