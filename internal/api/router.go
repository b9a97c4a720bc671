package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/auth"
	"github.com/meetsy/backend/internal/config"
	"github.com/meetsy/backend/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	authHandler         *AuthHandler
	connectionHandler   *ConnectionHandler
	messageHandler      *MessageHandler
	meetupHandler       *MeetupHandler
	activityHandler     *ActivityHandler
	notificationHandler *NotificationHandler
	healthHandler       *HealthHandler
	jwtManager          *auth.JWTManager
	cfg                 *config.Config
	logger              *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	authHandler *AuthHandler,
	connectionHandler *ConnectionHandler,
	messageHandler *MessageHandler,
	meetupHandler *MeetupHandler,
	activityHandler *ActivityHandler,
	notificationHandler *NotificationHandler,
	healthHandler *HealthHandler,
	jwtManager *auth.JWTManager,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		authHandler:         authHandler,
		connectionHandler:   connectionHandler,
		messageHandler:      messageHandler,
		meetupHandler:       meetupHandler,
		activityHandler:     activityHandler,
		notificationHandler: notificationHandler,
		healthHandler:       healthHandler,
		jwtManager:          jwtManager,
		cfg:                 cfg,
		logger:              logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware())
	r.Use(chimiddleware.Compress(5))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	// Change feed
	r.Group(func(r chi.Router) {
		r.Use(middleware.WebSocketAuthMiddleware(rt.jwtManager))
		r.Get("/ws", rt.messageHandler.HandleWebSocket)
	})

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", rt.authHandler.Register)
			r.Post("/login", rt.authHandler.Login)
			r.Post("/refresh", rt.authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.jwtManager))

			r.Get("/me", rt.authHandler.Me)
			r.Post("/me/fcm-token", rt.authHandler.UpdateFCMToken)

			r.Route("/connections", func(r chi.Router) {
				r.Post("/request", rt.connectionHandler.RequestConnection)
				r.Post("/respond", rt.connectionHandler.RespondToConnection)
				r.Get("/", rt.connectionHandler.ListConnections)

				r.Route("/{connectionId}", func(r chi.Router) {
					r.Get("/", rt.connectionHandler.GetConnection)
					r.Get("/messages", rt.messageHandler.ListMessages)
					r.With(middleware.RateLimitMiddleware(
						rt.cfg.RateLimit.MessagesPerSecond,
						rt.cfg.RateLimit.Burst,
					)).Post("/messages", rt.messageHandler.SendMessage)

					r.Post("/propose-time", rt.meetupHandler.ProposeTime)
					r.Post("/propose-location", rt.meetupHandler.ProposeLocation)
					r.Post("/accept/{messageId}", rt.meetupHandler.AcceptPayload)
					r.Post("/confirm", rt.meetupHandler.ConfirmMeetup)
					r.Post("/cancel", rt.meetupHandler.CancelMeetup)
				})
			})

			r.Route("/activities", func(r chi.Router) {
				r.Post("/", rt.activityHandler.CreateActivity)
				r.Post("/{activityId}/join", rt.activityHandler.JoinActivity)
				r.Get("/{activityId}/roster", rt.activityHandler.GetRoster)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", rt.notificationHandler.GetNotifications)
				r.Post("/{notificationId}/read", rt.notificationHandler.MarkRead)
			})
		})
	})

	return r
}
