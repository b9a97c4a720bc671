package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/pkg/apperr"
)

const connectionColumns = `
	id, requester_id, target_id, kind, activity_id, status,
	agreed_time, place_name, place_address, place_lat, place_lng,
	confirmed, created_at, updated_at
`

// CreateConnection inserts a pending connection. Partial unique indexes
// on the unordered pair (pairwise) and on (activity, requester) for group
// members reject a re-request while a non-declined record exists.
func (r *PostgresRepository) CreateConnection(ctx context.Context, requesterID, targetID uuid.UUID, kind domain.ConnectionKind, activityID *uuid.UUID) (*domain.Connection, error) {
	query := `
		INSERT INTO connections (requester_id, target_id, kind, activity_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + connectionColumns

	conn, err := scanConnection(r.db.QueryRow(ctx, query, requesterID, targetID, kind, activityID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, apperr.DuplicateRequest("connection already exists")
		}
		return nil, apperr.TransportFailure("connection write not acknowledged", err)
	}
	return conn, nil
}

// GetConnectionByID retrieves a connection by ID
func (r *PostgresRepository) GetConnectionByID(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return scanConnection(r.db.QueryRow(ctx, query, connectionID))
}

// GetConnectionsForUser lists connections the user is a party to,
// optionally filtered by status
func (r *PostgresRepository) GetConnectionsForUser(ctx context.Context, userID uuid.UUID, status domain.ConnectionStatus, limit, offset int) ([]*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE (requester_id = $1 OR target_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// UpdateConnectionStatus applies an accept or decline transition
func (r *PostgresRepository) UpdateConnectionStatus(ctx context.Context, connectionID uuid.UUID, status domain.ConnectionStatus) (*domain.Connection, error) {
	query := `
		UPDATE connections SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns

	conn, err := scanConnection(r.db.QueryRow(ctx, query, connectionID, status))
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, err
		}
		return nil, apperr.TransportFailure("connection write not acknowledged", err)
	}
	return conn, nil
}

// AcceptGroupMember accepts a pending group-member connection. The
// activity row is locked while the accepted count is re-read, closing the
// race where two near-simultaneous accepts would both pass a stale count
// and exceed the cap.
func (r *PostgresRepository) AcceptGroupMember(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperr.TransportFailure("could not open transaction", err)
	}
	defer tx.Rollback(ctx)

	var activityID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT activity_id FROM connections WHERE id = $1 AND kind = 'group_member' FOR UPDATE`,
		connectionID,
	).Scan(&activityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("connection not found")
		}
		return nil, err
	}

	var maxParticipants int
	err = tx.QueryRow(ctx,
		`SELECT max_participants FROM activities WHERE id = $1 FOR UPDATE`,
		activityID,
	).Scan(&maxParticipants)
	if err != nil {
		return nil, err
	}

	if maxParticipants > 0 {
		var accepted int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM connections WHERE activity_id = $1 AND status = 'accepted'`,
			activityID,
		).Scan(&accepted)
		if err != nil {
			return nil, err
		}
		if accepted >= maxParticipants {
			return nil, apperr.CapacityExceeded("activity is full")
		}
	}

	query := `
		UPDATE connections SET status = 'accepted', updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns
	conn, err := scanConnection(tx.QueryRow(ctx, query, connectionID))
	if err != nil {
		return nil, apperr.TransportFailure("connection write not acknowledged", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.TransportFailure("connection write not acknowledged", err)
	}
	return conn, nil
}

// CancelConnection transitions to cancelled and clears the confirmed flag
func (r *PostgresRepository) CancelConnection(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	query := `
		UPDATE connections SET status = 'cancelled', confirmed = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns

	conn, err := scanConnection(r.db.QueryRow(ctx, query, connectionID))
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, err
		}
		return nil, apperr.TransportFailure("connection write not acknowledged", err)
	}
	return conn, nil
}

// SetAgreedTime writes the agreed meeting time from an accepted proposal
func (r *PostgresRepository) SetAgreedTime(ctx context.Context, connectionID uuid.UUID, when time.Time) (*domain.Connection, error) {
	query := `
		UPDATE connections SET agreed_time = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns
	return scanConnection(r.db.QueryRow(ctx, query, connectionID, when))
}

// SetAgreedPlace writes the agreed meeting location from an accepted
// proposal
func (r *PostgresRepository) SetAgreedPlace(ctx context.Context, connectionID uuid.UUID, place domain.Place) (*domain.Connection, error) {
	query := `
		UPDATE connections
		SET place_name = $2, place_address = $3, place_lat = $4, place_lng = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns
	return scanConnection(r.db.QueryRow(ctx, query, connectionID, place.Name, place.Address, place.Lat, place.Lng))
}

// SetConfirmed flips the confirmed flag on
func (r *PostgresRepository) SetConfirmed(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	query := `
		UPDATE connections SET confirmed = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns
	return scanConnection(r.db.QueryRow(ctx, query, connectionID))
}

// CreateActivity creates a host-owned group activity
func (r *PostgresRepository) CreateActivity(ctx context.Context, hostID uuid.UUID, title string, maxParticipants int) (*domain.Activity, error) {
	query := `
		INSERT INTO activities (host_id, title, max_participants)
		VALUES ($1, $2, $3)
		RETURNING id, host_id, title, max_participants, created_at
	`
	var a domain.Activity
	err := r.db.QueryRow(ctx, query, hostID, title, maxParticipants).
		Scan(&a.ID, &a.HostID, &a.Title, &a.MaxParticipants, &a.CreatedAt)
	if err != nil {
		return nil, apperr.TransportFailure("activity write not acknowledged", err)
	}
	return &a, nil
}

// GetActivityByID retrieves an activity by ID
func (r *PostgresRepository) GetActivityByID(ctx context.Context, activityID uuid.UUID) (*domain.Activity, error) {
	query := `SELECT id, host_id, title, max_participants, created_at FROM activities WHERE id = $1`
	var a domain.Activity
	err := r.db.QueryRow(ctx, query, activityID).
		Scan(&a.ID, &a.HostID, &a.Title, &a.MaxParticipants, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("activity not found")
		}
		return nil, err
	}
	return &a, nil
}

// ListRoster partitions an activity's group members into going (accepted)
// and waiting (pending)
func (r *PostgresRepository) ListRoster(ctx context.Context, activityID uuid.UUID) (*domain.Roster, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE activity_id = $1 AND status IN ('accepted', 'pending')
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roster := &domain.Roster{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		if conn.Status == domain.ConnectionStatusAccepted {
			roster.Going = append(roster.Going, conn)
		} else {
			roster.Waiting = append(roster.Waiting, conn)
		}
	}
	return roster, rows.Err()
}

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var c domain.Connection
	var placeName, placeAddress *string
	var placeLat, placeLng *float64

	err := row.Scan(
		&c.ID,
		&c.RequesterID,
		&c.TargetID,
		&c.Kind,
		&c.ActivityID,
		&c.Status,
		&c.AgreedTime,
		&placeName,
		&placeAddress,
		&placeLat,
		&placeLng,
		&c.Confirmed,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("connection not found")
		}
		return nil, err
	}

	if placeName != nil {
		c.AgreedPlace = &domain.Place{Name: *placeName}
		if placeAddress != nil {
			c.AgreedPlace.Address = *placeAddress
		}
		if placeLat != nil {
			c.AgreedPlace.Lat = *placeLat
		}
		if placeLng != nil {
			c.AgreedPlace.Lng = *placeLng
		}
	}
	return &c, nil
}
