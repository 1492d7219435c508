// Package feed pushes committed trades to websocket subscribers.
// Delivery is best-effort: slow clients are dropped rather than allowed to
// back-pressure the trading path.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/observability"
)

// HubConfig configures websocket connection behavior.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client outbound queue size.
	SendBuffer int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// TradeEvent is the wire format pushed to subscribers.
type TradeEvent struct {
	Signature     string `json:"signature"`
	CoinID        string `json:"coin_id"`
	UserID        string `json:"user_id"`
	Side          string `json:"side"`
	TokenAmount   int64  `json:"token_amount"`
	QuoteAmount   string `json:"quote_amount"`
	PricePerToken string `json:"price_per_token"`
	ExecutedAt    int64  `json:"executed_at"`
}

// client is one connected subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed trades out to all connected clients.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub with the given configuration.
func NewHub(config *HubConfig, logger *log.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lshortfile)
	}

	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the venue UI on another origin.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.config.SendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	observability.SetFeedClients(count)

	go h.writePump(c)
	go h.readPump(c)
}

// PublishTrade queues a committed trade for every connected client.
// Clients whose queue is full are dropped.
func (h *Hub) PublishTrade(t *domain.Trade) {
	event := TradeEvent{
		Signature:     t.Signature,
		CoinID:        t.CoinID,
		UserID:        t.UserID,
		Side:          t.Side,
		TokenAmount:   t.TokenAmount,
		QuoteAmount:   t.QuoteAmount.String(),
		PricePerToken: t.PricePerToken.String(),
		ExecutedAt:    t.ExecutedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Printf("marshal trade event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
			observability.RecordFeedMessage()
		default:
			h.dropLocked(c)
			observability.RecordFeedClientDropped()
			h.logger.Printf("dropped slow feed client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// dropLocked removes a client; callers hold h.mu.
func (h *Hub) dropLocked(c *client) {
	if _, exists := h.clients[c]; !exists {
		return
	}
	delete(h.clients, c)
	close(c.send)
	observability.SetFeedClients(len(h.clients))
}

// drop removes a client from the registry.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// writePump writes queued events and ping frames to one client.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump drains inbound frames so control messages are processed and
// disconnects are noticed. Subscribers never send application data.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
