package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tdhoang/trunggian/internal/validation"
)

// Client represents one WebSocket connection.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	customerID string
	mu         sync.RWMutex
	rooms      map[string]bool
}

// inbound is what clients may send: room management and chat messages.
type inbound struct {
	Action string `json:"action"` // join, leave, chat
	Room   string `json:"room"`
	Body   string `json:"body"`
}

func (c *Client) inRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

func (c *Client) handle(msg inbound) {
	switch msg.Action {
	case "join":
		if msg.Room == "" {
			return
		}
		c.mu.Lock()
		c.rooms[msg.Room] = true
		c.mu.Unlock()
	case "leave":
		if msg.Room == GeneralRoom {
			return // the general feed is always on
		}
		c.mu.Lock()
		delete(c.rooms, msg.Room)
		c.mu.Unlock()
	case "chat":
		body := validation.SanitizeString(msg.Body, 2000)
		if msg.Room == "" || body == "" || !c.inRoom(msg.Room) {
			return
		}
		c.hub.Broadcast(&Event{
			Type:      EventChat,
			Room:      msg.Room,
			Timestamp: time.Now(),
			Data:      ChatMessage{From: c.customerID, Body: body},
		})
	}
}

// readPump reads messages from the WebSocket (joins, chat, pongs).
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handle(msg)
		}
	}
}

// writePump writes messages to the WebSocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
