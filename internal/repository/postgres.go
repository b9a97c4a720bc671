package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/pkg/apperr"
)

// Postgres error codes we branch on.
const (
	pgUniqueViolation = "23505"
	pgUndefinedColumn = "42703"
)

// PostgresRepository implements the domain repository interfaces using
// PostgreSQL
type PostgresRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

// CreateUser creates a new user
func (r *PostgresRepository) CreateUser(ctx context.Context, params domain.CreateUserParams) (*domain.User, error) {
	query := `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, fcm_token, is_active, created_at, updated_at
	`
	row := r.db.QueryRow(ctx, query, params.Email, params.Name, params.PasswordHash)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, apperr.DuplicateRequest("email already registered")
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, name, fcm_token, is_active, created_at, updated_at
		FROM users WHERE id = $1 AND is_active = TRUE
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetUserWithPassword retrieves a user with password hash for verification
func (r *PostgresRepository) GetUserWithPassword(ctx context.Context, email string) (*domain.User, string, error) {
	query := `
		SELECT id, email, name, fcm_token, is_active, created_at, updated_at, password_hash
		FROM users WHERE email = $1 AND is_active = TRUE
	`
	row := r.db.QueryRow(ctx, query, email)

	var user domain.User
	var passwordHash string
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.FCMToken,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&passwordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperr.NotFound("user not found")
		}
		return nil, "", err
	}
	return &user, passwordHash, nil
}

// UpdateUserFCMToken stores the user's push delivery token
func (r *PostgresRepository) UpdateUserFCMToken(ctx context.Context, userID uuid.UUID, token string) error {
	query := `UPDATE users SET fcm_token = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, userID, token); err != nil {
		return apperr.TransportFailure("user write not acknowledged", err)
	}
	return nil
}

// CreateNotification stores a notification row
func (r *PostgresRepository) CreateNotification(ctx context.Context, userID uuid.UUID, typeStr, title, body string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO notifications (user_id, type, title, body, data)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, userID, typeStr, title, body, payload); err != nil {
		return apperr.TransportFailure("notification write not acknowledged", err)
	}
	return nil
}

// GetNotifications lists a user's notifications, newest first
func (r *PostgresRepository) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, type, title, body, data, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &data, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &n.Data)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flags a notification as read
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, notificationID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, notificationID); err != nil {
		return apperr.TransportFailure("notification write not acknowledged", err)
	}
	return nil
}

// GetFCMToken returns the user's push token, empty when none is set
func (r *PostgresRepository) GetFCMToken(ctx context.Context, userID uuid.UUID) (string, error) {
	query := `SELECT COALESCE(fcm_token, '') FROM users WHERE id = $1`
	var token string
	if err := r.db.QueryRow(ctx, query, userID).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("user not found")
		}
		return "", err
	}
	return token, nil
}

// StartArchiveWorker starts the daily-reset collaborator: a background
// worker that soft-archives messages older than retention. Connections
// whose schema predates the archived_at column are tolerated; the worker
// logs and retries next tick.
func (r *PostgresRepository) StartArchiveWorker(ctx context.Context, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				query := `UPDATE messages SET archived_at = NOW() WHERE archived_at IS NULL AND created_at < $1`
				tag, err := r.db.Exec(ctx, query, cutoff)
				if err != nil {
					r.logger.Warn("archive pass failed", zap.Error(err))
					continue
				}
				if tag.RowsAffected() > 0 {
					r.logger.Info("archived stale messages", zap.Int64("count", tag.RowsAffected()))
				}
			}
		}
	}()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.FCMToken,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}
