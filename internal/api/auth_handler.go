package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/middleware"
	"github.com/meetsy/backend/pkg/response"
)

type AuthHandler struct {
	authService *domain.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *domain.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	result, err := h.authService.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.logger.Warn("registration failed", zap.Error(err))
		response.AppError(w, err)
		return
	}

	response.Created(w, result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.OK(w, result)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.OK(w, result)
}

// Me handles GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	user, err := h.authService.Me(r.Context(), userID)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.OK(w, user)
}

// UpdateFCMToken handles POST /me/fcm-token
func (h *AuthHandler) UpdateFCMToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	if err := h.authService.UpdateFCMToken(r.Context(), userID, req.Token); err != nil {
		response.AppError(w, err)
		return
	}

	response.NoContent(w)
}
