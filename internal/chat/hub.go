// Package chat provides WebSocket streaming for transaction events and
// per-transaction chat.
//
// Clients join rooms: the "general" room carries every transaction
// lifecycle event, and each transaction has its own room where the two
// parties can exchange messages while the trade (or a dispute) is in
// flight. Delivery is best-effort broadcast; clients that fall behind are
// disconnected.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tdhoang/trunggian/internal/escrow"
	"github.com/tdhoang/trunggian/internal/metrics"
)

// GeneralRoom carries all transaction lifecycle events.
const GeneralRoom = "general"

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// normalCloseCodes are WebSocket close codes for an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// EventType for outbound events.
type EventType string

const (
	EventTransaction EventType = "transaction" // lifecycle change on a transaction
	EventChat        EventType = "chat"        // a message from a room participant
)

// Event is one outbound frame.
type Event struct {
	Type      EventType   `json:"type"`
	Event     string      `json:"event,omitempty"` // lifecycle event name, e.g. transaction.confirmed
	Room      string      `json:"room"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ChatMessage is the payload of an EventChat frame.
type ChatMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// Hub manages all WebSocket connections and rooms.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a new chat hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("chat hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("chat hub shutting down, closing client connections")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("chat hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			if current := int64(len(h.clients)); current > h.peakClients.Load() {
				h.peakClients.Store(current)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("client connected", "customerId", client.customerID, "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("client disconnected", "customerId", client.customerID, "total", n)

		case event := <-h.broadcast:
			h.totalEvents.Add(1)
			payload := serialize(event)
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if client.inRoom(event.Room) {
					select {
					case client.send <- payload:
					default:
						slow = append(slow, client)
					}
				}
			}
			h.mu.RUnlock()
			// Remove slow clients under write lock
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

func serialize(event *Event) []byte {
	data, _ := json.Marshal(event)
	return data
}

// Broadcast sends an event to every client in its room.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "room", event.Room)
	}
}

// TransactionEvent implements the escrow event emitter: lifecycle changes
// go both to the transaction's own room and to the general feed.
func (h *Hub) TransactionEvent(event string, t *escrow.Transaction) {
	now := time.Now()
	h.Broadcast(&Event{Type: EventTransaction, Event: event, Room: t.ID, Timestamp: now, Data: t})
	h.Broadcast(&Event{Type: EventTransaction, Event: event, Room: GeneralRoom, Timestamp: now, Data: t})
}

// Stats returns hub statistics.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket. customerID identifies the
// authenticated caller and is stamped on their chat messages.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, customerID string) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		customerID: customerID,
		rooms:      map[string]bool{GeneralRoom: true},
	}
	if room := r.URL.Query().Get("room"); room != "" {
		client.rooms[room] = true
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
