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

func newTestConnectionService(t *testing.T) (*ConnectionService, *fakeStore, *fakeNotifier) {
	t.Helper()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	return NewConnectionService(store, store, notifier, zap.NewNop()), store, notifier
}

func TestRequestConnection(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("creates pending connection and notifies target", func(t *testing.T) {
		svc, _, notifier := newTestConnectionService(t)

		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, ConnectionStatusPending, conn.Status)
		assert.Equal(t, alice, conn.RequesterID)
		assert.Equal(t, bob, conn.TargetID)
		assert.False(t, conn.Confirmed)

		sent := notifier.byType(NotificationTypeRequest)
		require.Len(t, sent, 1)
		assert.Equal(t, bob, sent[0].UserID)
	})

	t.Run("self request is rejected", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		_, err := svc.Request(ctx, alice, alice)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	})

	t.Run("duplicate request is rejected while a live connection exists", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		_, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		_, err = svc.Request(ctx, alice, bob)
		assert.True(t, apperr.Is(err, apperr.CodeDuplicateRequest))

		// Direction does not matter; the pair is unordered.
		_, err = svc.Request(ctx, bob, alice)
		assert.True(t, apperr.Is(err, apperr.CodeDuplicateRequest))
	})

	t.Run("cancelled connection still blocks a new request", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)
		_, _, err = svc.Cancel(ctx, alice, conn.ID, "")
		require.NoError(t, err)

		_, err = svc.Request(ctx, alice, bob)
		assert.True(t, apperr.Is(err, apperr.CodeDuplicateRequest))
	})

	t.Run("declined connection frees the pair for a retry", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)
		_, err = svc.Respond(ctx, bob, conn.ID, false)
		require.NoError(t, err)

		_, err = svc.Request(ctx, alice, bob)
		assert.NoError(t, err)
	})
}

func TestRespondToConnection(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("target accepts", func(t *testing.T) {
		svc, _, notifier := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		updated, err := svc.Respond(ctx, bob, conn.ID, true)
		require.NoError(t, err)
		assert.Equal(t, ConnectionStatusAccepted, updated.Status)

		sent := notifier.byType(NotificationTypeResponse)
		require.Len(t, sent, 1)
		assert.Equal(t, alice, sent[0].UserID)
	})

	t.Run("requester cannot respond to own request", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		_, err = svc.Respond(ctx, alice, conn.ID, true)
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})

	t.Run("third party cannot respond", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		_, err = svc.Respond(ctx, uuid.New(), conn.ID, true)
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})

	t.Run("responding twice is an invalid transition", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)
		_, err = svc.Respond(ctx, bob, conn.ID, true)
		require.NoError(t, err)

		_, err = svc.Respond(ctx, bob, conn.ID, false)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})
}

func TestCancelConnection(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("either party may cancel and confirmed flag is cleared", func(t *testing.T) {
		svc, store, _ := newTestConnectionService(t)
		conn := negotiatedConnection(t, ctx, svc, store, alice, bob)

		confirmed, _, err := svc.Confirm(ctx, alice, conn.ID)
		require.NoError(t, err)
		require.True(t, confirmed.Confirmed)

		cancelled, msg, err := svc.Cancel(ctx, bob, conn.ID, "something came up")
		require.NoError(t, err)
		assert.Equal(t, ConnectionStatusCancelled, cancelled.Status)
		assert.False(t, cancelled.Confirmed)

		require.True(t, msg.IsSystem)
		assert.Equal(t, uuid.Nil, msg.SenderID)
		assert.Contains(t, msg.Body, "something came up")
		assert.Contains(t, msg.Body, "(was ")
	})

	t.Run("cancel without agreement omits the recap", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		_, msg, err := svc.Cancel(ctx, alice, conn.ID, "")
		require.NoError(t, err)
		assert.Equal(t, "Meetup cancelled", msg.Body)
	})

	t.Run("cancelling a closed connection fails", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)
		_, _, err = svc.Cancel(ctx, alice, conn.ID, "")
		require.NoError(t, err)

		_, _, err = svc.Cancel(ctx, bob, conn.ID, "")
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})

	t.Run("outsider cannot cancel", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		_, _, err = svc.Cancel(ctx, uuid.New(), conn.ID, "")
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})
}

func TestConfirmConnection(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("requires accepted status with agreed time and place", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		conn, err := svc.Request(ctx, alice, bob)
		require.NoError(t, err)

		_, _, err = svc.Confirm(ctx, alice, conn.ID)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})

	t.Run("confirm emits a system notice with the agreed details", func(t *testing.T) {
		svc, store, notifier := newTestConnectionService(t)
		conn := negotiatedConnection(t, ctx, svc, store, alice, bob)

		updated, msg, err := svc.Confirm(ctx, alice, conn.ID)
		require.NoError(t, err)
		assert.True(t, updated.Confirmed)
		require.True(t, msg.IsSystem)
		assert.Contains(t, msg.Body, "Meetup confirmed for")
		assert.Contains(t, msg.Body, "Dolores Park")

		sent := notifier.byType(NotificationTypeConfirmed)
		require.Len(t, sent, 1)
		assert.Equal(t, bob, sent[0].UserID)
	})

	t.Run("confirming twice is an invalid transition", func(t *testing.T) {
		svc, store, _ := newTestConnectionService(t)
		conn := negotiatedConnection(t, ctx, svc, store, alice, bob)

		_, _, err := svc.Confirm(ctx, alice, conn.ID)
		require.NoError(t, err)
		_, _, err = svc.Confirm(ctx, bob, conn.ID)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})

	t.Run("confirm after cancel fails", func(t *testing.T) {
		svc, store, _ := newTestConnectionService(t)
		conn := negotiatedConnection(t, ctx, svc, store, alice, bob)

		_, _, err := svc.Cancel(ctx, alice, conn.ID, "")
		require.NoError(t, err)
		_, _, err = svc.Confirm(ctx, bob, conn.ID)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	})
}

func TestGroupActivities(t *testing.T) {
	ctx := context.Background()
	host := uuid.New()

	t.Run("host cannot join own activity", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		activity, err := svc.CreateActivity(ctx, host, "Sunday hike", 3)
		require.NoError(t, err)

		_, err = svc.JoinActivity(ctx, host, activity.ID)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	})

	t.Run("negative capacity is rejected", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		_, err := svc.CreateActivity(ctx, host, "Sunday hike", -1)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	})

	t.Run("accepts beyond capacity are refused", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		activity, err := svc.CreateActivity(ctx, host, "Board games", 2)
		require.NoError(t, err)

		var conns []*Connection
		for i := 0; i < 3; i++ {
			conn, err := svc.JoinActivity(ctx, uuid.New(), activity.ID)
			require.NoError(t, err)
			conns = append(conns, conn)
		}

		_, err = svc.Respond(ctx, host, conns[0].ID, true)
		require.NoError(t, err)
		_, err = svc.Respond(ctx, host, conns[1].ID, true)
		require.NoError(t, err)

		_, err = svc.Respond(ctx, host, conns[2].ID, true)
		assert.True(t, apperr.Is(err, apperr.CodeCapacityExceeded))

		// The refused joiner can still be declined cleanly.
		_, err = svc.Respond(ctx, host, conns[2].ID, false)
		assert.NoError(t, err)
	})

	t.Run("zero capacity means unbounded", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		activity, err := svc.CreateActivity(ctx, host, "Open mic", 0)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			conn, err := svc.JoinActivity(ctx, uuid.New(), activity.ID)
			require.NoError(t, err)
			_, err = svc.Respond(ctx, host, conn.ID, true)
			require.NoError(t, err)
		}
	})

	t.Run("roster partitions going and waiting", func(t *testing.T) {
		svc, _, _ := newTestConnectionService(t)
		activity, err := svc.CreateActivity(ctx, host, "Trivia night", 5)
		require.NoError(t, err)

		accepted, err := svc.JoinActivity(ctx, uuid.New(), activity.ID)
		require.NoError(t, err)
		_, err = svc.Respond(ctx, host, accepted.ID, true)
		require.NoError(t, err)

		_, err = svc.JoinActivity(ctx, uuid.New(), activity.ID)
		require.NoError(t, err)

		roster, err := svc.GetRoster(ctx, activity.ID)
		require.NoError(t, err)
		assert.Len(t, roster.Going, 1)
		assert.Len(t, roster.Waiting, 1)
	})
}

// negotiatedConnection builds an accepted connection with agreed time and
// place, ready for confirmation.
func negotiatedConnection(t *testing.T, ctx context.Context, svc *ConnectionService, store *fakeStore, a, b uuid.UUID) *Connection {
	t.Helper()

	conn, err := svc.Request(ctx, a, b)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, b, conn.ID, true)
	require.NoError(t, err)

	when := store.tick().Add(48 * time.Hour)
	_, err = store.SetAgreedTime(ctx, conn.ID, when)
	require.NoError(t, err)
	updated, err := store.SetAgreedPlace(ctx, conn.ID, Place{Name: "Dolores Park", Lat: 37.76, Lng: -122.43})
	require.NoError(t, err)
	return updated
}
