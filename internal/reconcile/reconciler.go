package reconcile

import (
	"sort"

	"github.com/google/uuid"

	"github.com/meetsy/backend/internal/domain"
)

// Reconciler keeps one client's view of a single connection consistent
// with the authoritative backing record as change events arrive out of
// band. It is deliberately not goroutine-safe: all methods must be called
// from the goroutine that owns the view. The inbox channel is the only
// cross-goroutine seam; queued events are merged when the owner calls
// Drain at its suspension points.
//
// Local writes are speculative. They are staged immediately, then either
// committed with the authoritative record once the store acknowledges the
// write, or rolled back with the original input re-surfaced so the intent
// is not silently lost.
type Reconciler struct {
	connectionID uuid.UUID
	inbox        chan ChangeEvent

	connection      *domain.Connection
	priorConnection *domain.Connection

	messages []*domain.Message
	byID     map[uuid.UUID]*domain.Message

	// pendingInputs maps a provisional message id to the caller input that
	// produced it, for re-surfacing on rollback.
	pendingInputs map[uuid.UUID]string
}

// View is a read-only snapshot of the reconciled state.
type View struct {
	Connection *domain.Connection
	Messages   []*domain.Message
}

const inboxBuffer = 64

func New(connectionID uuid.UUID) *Reconciler {
	return &Reconciler{
		connectionID:  connectionID,
		inbox:         make(chan ChangeEvent, inboxBuffer),
		byID:          make(map[uuid.UUID]*domain.Message),
		pendingInputs: make(map[uuid.UUID]string),
	}
}

// Seed initializes the view from an authoritative read.
func (r *Reconciler) Seed(conn *domain.Connection, msgs []*domain.Message) {
	r.connection = conn
	r.messages = r.messages[:0]
	r.byID = make(map[uuid.UUID]*domain.Message, len(msgs))
	for _, m := range msgs {
		r.upsertMessage(m)
	}
}

// Inbox is where the change-feed transport delivers events.
func (r *Reconciler) Inbox() chan<- ChangeEvent {
	return r.inbox
}

// Drain merges every queued change event and reports how many were
// applied. Never blocks.
func (r *Reconciler) Drain() int {
	applied := 0
	for {
		select {
		case ev := <-r.inbox:
			r.Apply(ev)
			applied++
		default:
			return applied
		}
	}
}

// Apply merges one authoritative event into the view. Messages are merged
// by creation timestamp with identity-based deduplication: an event for a
// known id is a no-op if unchanged, an in-place update otherwise.
// Connection events replace the whole record, last writer wins, because
// the state machine's invariants only hold on a complete record.
func (r *Reconciler) Apply(ev ChangeEvent) {
	if ev.ConnectionID != r.connectionID {
		return
	}

	switch ev.Kind {
	case EventMessageInsert, EventMessageUpdate:
		if ev.Message == nil {
			return
		}
		// An authoritative event for a staged write supersedes it.
		delete(r.pendingInputs, ev.Message.ID)
		if ev.Message.ArchivedAt != nil {
			r.removeMessage(ev.Message.ID)
			return
		}
		r.upsertMessage(ev.Message)

	case EventConnectionUpdate:
		if ev.Connection == nil {
			return
		}
		r.connection = ev.Connection
		r.priorConnection = nil
	}
}

// StageMessage records a locally-issued optimistic message before the
// store has acknowledged it. input is the raw caller intent (message text
// or encoded payload) to re-surface if the write fails.
func (r *Reconciler) StageMessage(msg *domain.Message, input string) {
	r.pendingInputs[msg.ID] = input
	r.upsertMessage(msg)
}

// CommitMessage replaces the staged provisional message with the
// acknowledged authoritative one.
func (r *Reconciler) CommitMessage(provisionalID uuid.UUID, authoritative *domain.Message) {
	delete(r.pendingInputs, provisionalID)
	if provisionalID != authoritative.ID {
		r.removeMessage(provisionalID)
	}
	r.upsertMessage(authoritative)
}

// RollbackMessage discards a failed optimistic message and returns the
// original caller input.
func (r *Reconciler) RollbackMessage(provisionalID uuid.UUID) (string, bool) {
	input, ok := r.pendingInputs[provisionalID]
	if !ok {
		return "", false
	}
	delete(r.pendingInputs, provisionalID)
	r.removeMessage(provisionalID)
	return input, true
}

// StageConnection records an optimistic connection mutation, keeping the
// prior record for rollback. Staging twice keeps the oldest snapshot.
func (r *Reconciler) StageConnection(next *domain.Connection) {
	if r.priorConnection == nil {
		r.priorConnection = r.connection
	}
	r.connection = next
}

// CommitConnection installs the acknowledged authoritative record.
func (r *Reconciler) CommitConnection(authoritative *domain.Connection) {
	r.connection = authoritative
	r.priorConnection = nil
}

// RollbackConnection restores the record from before the optimistic
// mutation. Reports whether there was anything to roll back.
func (r *Reconciler) RollbackConnection() bool {
	if r.priorConnection == nil {
		return false
	}
	r.connection = r.priorConnection
	r.priorConnection = nil
	return true
}

// PendingWrites reports how many optimistic writes await reconciliation.
func (r *Reconciler) PendingWrites() int {
	return len(r.pendingInputs)
}

// View returns a snapshot of the current reconciled state. The message
// slice is copied; the records themselves are shared.
func (r *Reconciler) View() View {
	msgs := make([]*domain.Message, len(r.messages))
	copy(msgs, r.messages)
	return View{Connection: r.connection, Messages: msgs}
}

func (r *Reconciler) upsertMessage(msg *domain.Message) {
	if existing, ok := r.byID[msg.ID]; ok {
		*existing = *msg
	} else {
		clone := *msg
		r.byID[msg.ID] = &clone
		r.messages = append(r.messages, &clone)
	}
	sort.SliceStable(r.messages, func(i, j int) bool {
		if r.messages[i].CreatedAt.Equal(r.messages[j].CreatedAt) {
			return r.messages[i].ID.String() < r.messages[j].ID.String()
		}
		return r.messages[i].CreatedAt.Before(r.messages[j].CreatedAt)
	})
}

func (r *Reconciler) removeMessage(id uuid.UUID) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, m := range r.messages {
		if m.ID == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			break
		}
	}
}
