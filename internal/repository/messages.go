package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/pkg/apperr"
)

// CreateMessage appends a message to a connection's log
func (r *PostgresRepository) CreateMessage(ctx context.Context, connectionID, senderID uuid.UUID, body string, isSystem bool) (*domain.Message, error) {
	query := `
		INSERT INTO messages (connection_id, sender_id, body, is_system)
		VALUES ($1, $2, $3, $4)
		RETURNING id, connection_id, sender_id, body, is_system, created_at, archived_at
	`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, connectionID, senderID, body, isSystem))
	if err != nil {
		return nil, apperr.TransportFailure("message write not acknowledged", err)
	}
	return msg, nil
}

// GetMessageByID retrieves a message by ID, archived or not
func (r *PostgresRepository) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, connection_id, sender_id, body, is_system, created_at, archived_at
		FROM messages WHERE id = $1
	`
	return scanMessage(r.db.QueryRow(ctx, query, messageID))
}

// GetActiveMessages lists a connection's unarchived messages in creation
// order. Deployments whose messages table predates the archived_at column
// get an unfiltered listing instead of an error.
func (r *PostgresRepository) GetActiveMessages(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT id, connection_id, sender_id, body, is_system, created_at, archived_at
		FROM messages
		WHERE connection_id = $1 AND archived_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	msgs, err := r.queryMessages(ctx, query, connectionID, limit, offset)
	if err == nil {
		return msgs, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUndefinedColumn {
		return nil, err
	}

	// Pre-migration schema: no soft-archive support yet.
	r.logger.Debug("messages table has no archived_at column, listing unfiltered",
		zap.String("connection_id", connectionID.String()))
	legacy := `
		SELECT id, connection_id, sender_id, body, is_system, created_at, NULL::timestamptz
		FROM messages
		WHERE connection_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	return r.queryMessages(ctx, legacy, connectionID, limit, offset)
}

// UpdateMessageBody rewrites a message body in place, preserving identity
// and creation timestamp
func (r *PostgresRepository) UpdateMessageBody(ctx context.Context, messageID uuid.UUID, body string) (*domain.Message, error) {
	query := `
		UPDATE messages SET body = $2
		WHERE id = $1
		RETURNING id, connection_id, sender_id, body, is_system, created_at, archived_at
	`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, messageID, body))
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, err
		}
		return nil, apperr.TransportFailure("message write not acknowledged", err)
	}
	return msg, nil
}

// ArchiveMessages soft-deletes a connection's messages older than cutoff.
// Already-archived rows are untouched, so repeat calls are no-ops.
func (r *PostgresRepository) ArchiveMessages(ctx context.Context, connectionID uuid.UUID, cutoff time.Time) (int64, error) {
	query := `
		UPDATE messages SET archived_at = NOW()
		WHERE connection_id = $1 AND created_at < $2 AND archived_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, connectionID, cutoff)
	if err != nil {
		return 0, apperr.TransportFailure("archive write not acknowledged", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) queryMessages(ctx context.Context, query string, connectionID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, connectionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.ConnectionID,
		&m.SenderID,
		&m.Body,
		&m.IsSystem,
		&m.CreatedAt,
		&m.ArchivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, err
	}
	return &m, nil
}
