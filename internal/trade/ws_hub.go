package trade

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jbmild/cocos/internal/metrics"
)

// WSMessage is a JSON order event sent to WebSocket clients.
type WSMessage struct {
	Type    string `json:"type"` // "order_created" or "order_cancelled"
	OrderID string `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Ticker  string `json:"ticker,omitempty"`
	Side    string `json:"side,omitempty"`
	Status  string `json:"status"`
	Size    int64  `json:"size,omitempty"`
	Price   string `json:"price,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	// userID filters events to one account; 0 subscribes to all users.
	userID int64

	// writeMu serializes broadcast and ping writes; the connection allows
	// at most one concurrent writer.
	writeMu sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// WSHub manages WebSocket connections and pushes order lifecycle events to
// subscribers, optionally filtered per user.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	events     chan WSMessage
	register   chan *wsClient
	unregister chan *wsClient
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]bool),
		events:     make(chan WSMessage, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "user_filter", c.userID)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.events:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			var dead []*wsClient
			h.mu.RLock()
			for c := range h.clients {
				if c.userID != 0 && c.userID != msg.UserID {
					continue
				}
				if err := c.write(websocket.TextMessage, data); err != nil {
					dead = append(dead, c)
				}
			}
			h.mu.RUnlock()

			h.mu.Lock()
			for _, c := range dead {
				if _, ok := h.clients[c]; ok {
					delete(h.clients, c)
					c.conn.Close()
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an order event for delivery to subscribed clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.events <- msg:
	default:
		// Drop if buffer full to avoid blocking order processing.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
// An optional ?user_id=N query parameter narrows the stream to one account.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if v := r.URL.Query().Get("user_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, "user_id must be a positive integer", http.StatusBadRequest)
			return
		}
		userID = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	client := &wsClient{conn: conn, userID: userID}
	h.register <- client

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- client }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[client]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := client.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
