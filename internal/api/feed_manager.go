package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/reconcile"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (adjust for production)
	},
}

// ViewLoader reads the authoritative snapshot that seeds a subscription.
type ViewLoader interface {
	LoadView(ctx context.Context, userID, connectionID uuid.UUID) (*domain.Connection, []*domain.Message, error)
}

// WSEvent is the wire envelope for feed traffic.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client is one websocket session. Its run loop owns a reconciler per
// subscribed connection, so every event a client sees has already been
// merged: deduplicated, ordered by creation time, connection replaced
// whole.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte

	events      chan reconcile.ChangeEvent
	subscribes  chan uuid.UUID
	done        chan struct{}
	reconcilers map[uuid.UUID]*reconcile.Reconciler
}

// FeedManager delivers change events to each party's connected clients,
// keyed by user.
type FeedManager struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	// Map userID to active clients (multi-device support)
	userClients map[uuid.UUID]map[*Client]bool
	mu          sync.RWMutex
	loader      ViewLoader
	logger      *zap.Logger
}

func NewFeedManager(loader ViewLoader, logger *zap.Logger) *FeedManager {
	return &FeedManager{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		userClients: make(map[uuid.UUID]map[*Client]bool),
		loader:      loader,
		logger:      logger,
	}
}

func (m *FeedManager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			if _, ok := m.userClients[client.UserID]; !ok {
				m.userClients[client.UserID] = make(map[*Client]bool)
			}
			m.userClients[client.UserID][client] = true
			m.mu.Unlock()
			m.logger.Debug("feed client registered", zap.String("user_id", client.UserID.String()))

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				if userMap, ok := m.userClients[client.UserID]; ok {
					delete(userMap, client)
					if len(userMap) == 0 {
						delete(m.userClients, client.UserID)
					}
				}
				close(client.done)
				close(client.Send)
				m.logger.Debug("feed client unregistered", zap.String("user_id", client.UserID.String()))
			}
			m.mu.Unlock()
		}
	}
}

// Publish hands an authoritative change event to every connected client
// of the given users. Delivery is best effort: a slow client's queue
// overflowing drops the event for that client only.
func (m *FeedManager) Publish(ev reconcile.ChangeEvent, recipients ...uuid.UUID) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, userID := range recipients {
		clients, ok := m.userClients[userID]
		if !ok {
			continue
		}
		for client := range clients {
			select {
			case client.events <- ev:
			default:
				m.logger.Warn("feed event dropped, client queue full",
					zap.String("user_id", userID.String()),
					zap.String("connection_id", ev.ConnectionID.String()),
				)
			}
		}
	}
}

// Run is the client session loop. It is the sole owner of the client's
// reconcilers; events and subscription requests funnel in over channels.
func (c *Client) Run(m *FeedManager) {
	for {
		select {
		case <-c.done:
			return

		case connectionID := <-c.subscribes:
			c.handleSubscribe(m, connectionID)

		case ev := <-c.events:
			rec, ok := c.reconcilers[ev.ConnectionID]
			if !ok {
				continue
			}
			rec.Inbox() <- ev
			rec.Drain()
			c.push(m, WSEvent{Type: string(ev.Kind), Payload: ev})
		}
	}
}

func (c *Client) handleSubscribe(m *FeedManager, connectionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, msgs, err := m.loader.LoadView(ctx, c.UserID, connectionID)
	if err != nil {
		m.logger.Warn("feed subscribe failed",
			zap.String("user_id", c.UserID.String()),
			zap.String("connection_id", connectionID.String()),
			zap.Error(err),
		)
		c.push(m, WSEvent{Type: "subscribe_error", Payload: map[string]string{
			"connection_id": connectionID.String(),
		}})
		return
	}

	rec := reconcile.New(connectionID)
	rec.Seed(conn, msgs)
	// Events queued while the snapshot was loading merge on top of it.
	rec.Drain()
	c.reconcilers[connectionID] = rec

	view := rec.View()
	c.push(m, WSEvent{Type: "view_snapshot", Payload: map[string]interface{}{
		"connection": view.Connection,
		"messages":   view.Messages,
	}})
}

func (c *Client) push(m *FeedManager, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("failed to marshal feed event", zap.Error(err))
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// feedRequest is what clients send over the socket.
type feedRequest struct {
	Type         string    `json:"type"`
	ConnectionID uuid.UUID `json:"connection_id"`
}

func (c *Client) ReadPump(m *FeedManager) {
	defer func() {
		m.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var req feedRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Type == "subscribe" && req.ConnectionID != uuid.Nil {
			select {
			case c.subscribes <- req.ConnectionID:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()

	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		// Flush anything else already queued into the same frame.
		n := len(c.Send)
		for i := 0; i < n; i++ {
			w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
