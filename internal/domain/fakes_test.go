package domain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetsy/backend/pkg/apperr"
)

// fakeStore is an in-memory stand-in for the Postgres repository. It
// mirrors the store-level guarantees the services lean on: pair
// uniqueness, capacity re-check on group accept, creation-order listing.
type fakeStore struct {
	mu          sync.Mutex
	connections map[uuid.UUID]*Connection
	activities  map[uuid.UUID]*Activity
	messages    map[uuid.UUID]*Message
	order       []uuid.UUID
	clock       time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		connections: make(map[uuid.UUID]*Connection),
		activities:  make(map[uuid.UUID]*Activity),
		messages:    make(map[uuid.UUID]*Message),
		clock:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so creation order is unambiguous.
func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) CreateConnection(ctx context.Context, requesterID, targetID uuid.UUID, kind ConnectionKind, activityID *uuid.UUID) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.connections {
		if c.Status == ConnectionStatusDeclined {
			continue
		}
		if kind == ConnectionKindPairwise && c.Kind == ConnectionKindPairwise &&
			samePair(c, requesterID, targetID) {
			return nil, apperr.DuplicateRequest("connection already exists")
		}
		if kind == ConnectionKindGroupMember && c.Kind == ConnectionKindGroupMember &&
			activityID != nil && c.ActivityID != nil && *c.ActivityID == *activityID &&
			c.RequesterID == requesterID {
			return nil, apperr.DuplicateRequest("connection already exists")
		}
	}

	now := f.tick()
	conn := &Connection{
		ID:          uuid.New(),
		RequesterID: requesterID,
		TargetID:    targetID,
		Kind:        kind,
		ActivityID:  activityID,
		Status:      ConnectionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.connections[conn.ID] = conn
	return clone(conn), nil
}

func samePair(c *Connection, a, b uuid.UUID) bool {
	return (c.RequesterID == a && c.TargetID == b) || (c.RequesterID == b && c.TargetID == a)
}

func (f *fakeStore) GetConnectionByID(ctx context.Context, connectionID uuid.UUID) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	return clone(conn), nil
}

func (f *fakeStore) GetConnectionsForUser(ctx context.Context, userID uuid.UUID, status ConnectionStatus, limit, offset int) ([]*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Connection
	for _, c := range f.connections {
		if c.RequesterID != userID && c.TargetID != userID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, clone(c))
	}
	return out, nil
}

func (f *fakeStore) UpdateConnectionStatus(ctx context.Context, connectionID uuid.UUID, status ConnectionStatus) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	conn.Status = status
	conn.UpdatedAt = f.tick()
	return clone(conn), nil
}

func (f *fakeStore) AcceptGroupMember(ctx context.Context, connectionID uuid.UUID) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	if conn.ActivityID == nil {
		return nil, apperr.NotFound("activity not found")
	}
	activity, ok := f.activities[*conn.ActivityID]
	if !ok {
		return nil, apperr.NotFound("activity not found")
	}

	if activity.MaxParticipants > 0 {
		accepted := 0
		for _, c := range f.connections {
			if c.ActivityID != nil && *c.ActivityID == activity.ID && c.Status == ConnectionStatusAccepted {
				accepted++
			}
		}
		if accepted >= activity.MaxParticipants {
			return nil, apperr.CapacityExceeded("activity is full")
		}
	}

	conn.Status = ConnectionStatusAccepted
	conn.UpdatedAt = f.tick()
	return clone(conn), nil
}

func (f *fakeStore) CancelConnection(ctx context.Context, connectionID uuid.UUID) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	conn.Status = ConnectionStatusCancelled
	conn.Confirmed = false
	conn.UpdatedAt = f.tick()
	return clone(conn), nil
}

func (f *fakeStore) SetAgreedTime(ctx context.Context, connectionID uuid.UUID, when time.Time) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	conn.AgreedTime = &when
	conn.UpdatedAt = f.tick()
	return clone(conn), nil
}

func (f *fakeStore) SetAgreedPlace(ctx context.Context, connectionID uuid.UUID, place Place) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	conn.AgreedPlace = &place
	conn.UpdatedAt = f.tick()
	return clone(conn), nil
}

func (f *fakeStore) SetConfirmed(ctx context.Context, connectionID uuid.UUID) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return nil, apperr.NotFound("connection not found")
	}
	conn.Confirmed = true
	conn.UpdatedAt = f.tick()
	return clone(conn), nil
}

func (f *fakeStore) CreateActivity(ctx context.Context, hostID uuid.UUID, title string, maxParticipants int) (*Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &Activity{
		ID:              uuid.New(),
		HostID:          hostID,
		Title:           title,
		MaxParticipants: maxParticipants,
		CreatedAt:       f.tick(),
	}
	f.activities[a.ID] = a
	out := *a
	return &out, nil
}

func (f *fakeStore) GetActivityByID(ctx context.Context, activityID uuid.UUID) (*Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[activityID]
	if !ok {
		return nil, apperr.NotFound("activity not found")
	}
	out := *a
	return &out, nil
}

func (f *fakeStore) ListRoster(ctx context.Context, activityID uuid.UUID) (*Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster := &Roster{}
	for _, c := range f.connections {
		if c.ActivityID == nil || *c.ActivityID != activityID {
			continue
		}
		switch c.Status {
		case ConnectionStatusAccepted:
			roster.Going = append(roster.Going, clone(c))
		case ConnectionStatusPending:
			roster.Waiting = append(roster.Waiting, clone(c))
		}
	}
	return roster, nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, connectionID, senderID uuid.UUID, body string, isSystem bool) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &Message{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		SenderID:     senderID,
		Body:         body,
		IsSystem:     isSystem,
		CreatedAt:    f.tick(),
	}
	f.messages[msg.ID] = msg
	f.order = append(f.order, msg.ID)
	out := *msg
	return &out, nil
}

func (f *fakeStore) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	out := *msg
	return &out, nil
}

func (f *fakeStore) GetActiveMessages(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Message
	for _, id := range f.order {
		m := f.messages[id]
		if m.ConnectionID != connectionID || m.ArchivedAt != nil {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateMessageBody(ctx context.Context, messageID uuid.UUID, body string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	msg.Body = body
	out := *msg
	return &out, nil
}

func (f *fakeStore) ArchiveMessages(ctx context.Context, connectionID uuid.UUID, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	now := f.clock
	for _, m := range f.messages {
		if m.ConnectionID != connectionID || m.ArchivedAt != nil {
			continue
		}
		if m.CreatedAt.Before(cutoff) {
			at := now
			m.ArchivedAt = &at
			n++
		}
	}
	return n, nil
}

func clone(c *Connection) *Connection {
	out := *c
	return &out
}

// recordedNotification captures one Notify call for assertions.
type recordedNotification struct {
	UserID uuid.UUID
	Type   string
	Title  string
	Body   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, typeStr, title, body string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recordedNotification{UserID: userID, Type: typeStr, Title: title, Body: body})
	return nil
}

func (f *fakeNotifier) byType(typeStr string) []recordedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedNotification
	for _, n := range f.sent {
		if n.Type == typeStr {
			out = append(out, n)
		}
	}
	return out
}
