package domain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meetsy/backend/pkg/apperr"
)

func newTestMeetupService(t *testing.T) (*MeetupService, *ConnectionService, *fakeStore, *fakeNotifier) {
	t.Helper()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	connSvc := NewConnectionService(store, store, notifier, zap.NewNop())
	return NewMeetupService(connSvc, store, notifier, zap.NewNop()), connSvc, store, notifier
}

func acceptedConnection(t *testing.T, ctx context.Context, svc *ConnectionService, a, b uuid.UUID) *Connection {
	t.Helper()
	conn, err := svc.Request(ctx, a, b)
	require.NoError(t, err)
	updated, err := svc.Respond(ctx, b, conn.ID, true)
	require.NoError(t, err)
	return updated
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("appends to the log and notifies the counterparty", func(t *testing.T) {
		svc, connSvc, _, notifier := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		msg, err := svc.SendMessage(ctx, alice, conn.ID, "coffee this week?")
		require.NoError(t, err)
		assert.Equal(t, alice, msg.SenderID)
		assert.False(t, msg.IsSystem)

		sent := notifier.byType(NotificationTypeMessage)
		require.Len(t, sent, 1)
		assert.Equal(t, bob, sent[0].UserID)
	})

	t.Run("closed connection refuses messages", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)
		_, _, err := connSvc.Cancel(ctx, alice, conn.ID, "")
		require.NoError(t, err)

		_, err = svc.SendMessage(ctx, bob, conn.ID, "wait, really?")
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})

	t.Run("outsiders cannot write", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		_, err := svc.SendMessage(ctx, uuid.New(), conn.ID, "hi")
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})
}

// TestNegotiationFlow walks the full protocol: propose a time, accept it,
// propose a place, accept it, confirm.
func TestNegotiationFlow(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	svc, connSvc, _, _ := newTestMeetupService(t)
	conn := acceptedConnection(t, ctx, connSvc, alice, bob)

	when := time.Date(2025, 7, 12, 19, 0, 0, 0, time.UTC)
	timeMsg, err := svc.ProposeTime(ctx, alice, conn.ID, when)
	require.NoError(t, err)
	require.NotNil(t, timeMsg.Payload)
	assert.Equal(t, PayloadStatusPending, timeMsg.Payload.Status)

	// Accepting the time proposal fills the agreed time but leaves the
	// lifecycle status alone.
	acceptedMsg, updatedConn, err := svc.AcceptPayload(ctx, bob, conn.ID, timeMsg.ID)
	require.NoError(t, err)
	assert.Equal(t, PayloadStatusAccepted, acceptedMsg.Payload.Status)
	assert.Equal(t, ConnectionStatusAccepted, updatedConn.Status)
	require.NotNil(t, updatedConn.AgreedTime)
	assert.True(t, updatedConn.AgreedTime.Equal(when))
	assert.Nil(t, updatedConn.AgreedPlace)
	assert.False(t, updatedConn.Confirmable())

	place := Place{Name: "Tartine", Address: "600 Guerrero St", Lat: 37.76, Lng: -122.42}
	placeMsg, err := svc.ProposeLocation(ctx, bob, conn.ID, place)
	require.NoError(t, err)

	_, updatedConn, err = svc.AcceptPayload(ctx, alice, conn.ID, placeMsg.ID)
	require.NoError(t, err)
	require.NotNil(t, updatedConn.AgreedPlace)
	assert.Equal(t, "Tartine", updatedConn.AgreedPlace.Name)
	assert.True(t, updatedConn.Confirmable())

	confirmed, notice, err := connSvc.Confirm(ctx, alice, conn.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)
	assert.Contains(t, notice.Body, "Tartine")
	assert.Contains(t, notice.Body, when.Format(systemTimeFormat))
}

func TestAcceptPayload(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("accepting twice is idempotent", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		when := time.Date(2025, 7, 12, 19, 0, 0, 0, time.UTC)
		msg, err := svc.ProposeTime(ctx, alice, conn.ID, when)
		require.NoError(t, err)

		_, _, err = svc.AcceptPayload(ctx, bob, conn.ID, msg.ID)
		require.NoError(t, err)

		again, updatedConn, err := svc.AcceptPayload(ctx, bob, conn.ID, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, PayloadStatusAccepted, again.Payload.Status)
		require.NotNil(t, updatedConn.AgreedTime)
	})

	t.Run("plain chat cannot be accepted", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		msg, err := svc.SendMessage(ctx, alice, conn.ID, "how about tuesday?")
		require.NoError(t, err)

		_, _, err = svc.AcceptPayload(ctx, bob, conn.ID, msg.ID)
		assert.True(t, apperr.Is(err, apperr.CodeMalformedPayload))
	})

	t.Run("cancelled connection refuses acceptance", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		msg, err := svc.ProposeTime(ctx, alice, conn.ID, time.Now().Add(24*time.Hour))
		require.NoError(t, err)
		_, _, err = connSvc.Cancel(ctx, alice, conn.ID, "")
		require.NoError(t, err)

		_, _, err = svc.AcceptPayload(ctx, bob, conn.ID, msg.ID)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})

	t.Run("message from another connection is not found", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)
		carol := uuid.New()
		other := acceptedConnection(t, ctx, connSvc, alice, carol)

		msg, err := svc.ProposeTime(ctx, alice, other.ID, time.Now().Add(24*time.Hour))
		require.NoError(t, err)

		_, _, err = svc.AcceptPayload(ctx, bob, conn.ID, msg.ID)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})

	t.Run("counter proposal leaves the earlier payload untouched", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		first, err := svc.ProposeTime(ctx, alice, conn.ID, time.Date(2025, 7, 12, 19, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		second, err := svc.ProposeTime(ctx, bob, conn.ID, time.Date(2025, 7, 13, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		_, updatedConn, err := svc.AcceptPayload(ctx, alice, conn.ID, second.ID)
		require.NoError(t, err)
		require.NotNil(t, updatedConn.AgreedTime)
		assert.Equal(t, 13, updatedConn.AgreedTime.Day())

		msgs, err := svc.ListMessages(ctx, alice, conn.ID, 0, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			if m.ID == first.ID {
				require.NotNil(t, m.Payload)
				assert.Equal(t, PayloadStatusPending, m.Payload.Status)
			}
		}
	})
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("returns creation order with payloads decoded", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		_, err := svc.SendMessage(ctx, alice, conn.ID, "free saturday?")
		require.NoError(t, err)
		_, err = svc.ProposeTime(ctx, bob, conn.ID, time.Now().Add(72*time.Hour))
		require.NoError(t, err)

		msgs, err := svc.ListMessages(ctx, alice, conn.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Nil(t, msgs[0].Payload)
		require.NotNil(t, msgs[1].Payload)
		assert.Equal(t, PayloadKindTime, msgs[1].Payload.Kind)
		assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
	})

	t.Run("archived messages disappear from the active view", func(t *testing.T) {
		svc, connSvc, store, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		_, err := svc.SendMessage(ctx, alice, conn.ID, "yesterday's plan")
		require.NoError(t, err)
		cutoff := store.tick()
		_, err = svc.SendMessage(ctx, bob, conn.ID, "today's plan")
		require.NoError(t, err)

		n, err := store.ArchiveMessages(ctx, conn.ID, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		msgs, err := svc.ListMessages(ctx, alice, conn.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "today's plan", msgs[0].Body)

		// Re-running the sweep archives nothing further.
		n, err = store.ArchiveMessages(ctx, conn.ID, cutoff)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("outsiders cannot read", func(t *testing.T) {
		svc, connSvc, _, _ := newTestMeetupService(t)
		conn := acceptedConnection(t, ctx, connSvc, alice, bob)

		_, err := svc.ListMessages(ctx, uuid.New(), conn.ID, 0, 0)
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})
}
