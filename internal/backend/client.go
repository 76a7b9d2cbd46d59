// Package backend keeps the WebSocket session to the presentation
// backend. Outbound pushes go through a bounded send queue with
// drop-oldest backpressure; the session reconnects on its own with
// capped exponential backoff.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/config"
)

const (
	sendQueueSize  = 256
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	backoffInitial = time.Second
	backoffCap     = 30 * time.Second
)

// Message is the JSON frame exchanged with the backend.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DataRequest is the payload of chart_data_request and
// market_data_request frames.
type DataRequest struct {
	TokenAddress string `json:"token_address"`
	Interval     string `json:"interval,omitempty"`
}

// RequestHandler answers a data request from the backend. The reply is
// pushed back as a room message; a false return means no data.
type RequestHandler func(req DataRequest) (interface{}, bool)

// Client is the single-ownership backend socket.
type Client struct {
	url     string
	version string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	rooms     map[string]int

	sendQ chan []byte
	drops uint64

	// OnChartData and OnMarketData serve backend-initiated requests.
	OnChartData  RequestHandler
	OnMarketData RequestHandler
	// OnDrop, when set, observes each dropped message (metrics).
	OnDrop func()
}

func NewClient(cfg config.Websocket, version string) *Client {
	url := strings.TrimSuffix(cfg.BackendSocketURL, "/") + cfg.BackendNamespace
	return &Client{
		url:     url,
		version: version,
		rooms:   make(map[string]int),
		sendQ:   make(chan []byte, sendQueueSize),
	}
}

// Run owns the session for the lifetime of ctx: connect, pump, and
// reconnect with capped backoff. The live sink is best-effort, so the
// retry budget is unbounded; a dead backend only degrades health.
func (c *Client) Run(ctx context.Context) {
	backoff := backoffInitial
	for {
		if err := c.connect(ctx); err != nil {
			log.Warn().Str("url", c.url).Err(err).Msg("backend connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < backoffCap {
				backoff *= 2
				if backoff > backoffCap {
					backoff = backoffCap
				}
			}
			continue
		}
		backoff = backoffInitial
		c.pump(ctx)
		c.setConnected(nil)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("url", c.url).Msg("backend socket lost; reconnecting")
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.setConnected(conn)
	log.Info().Str("url", c.url).Msg("connected to backend socket")

	return c.Emit("client_identify", map[string]interface{}{
		"type":         "blockchain_listener",
		"version":      c.version,
		"capabilities": []string{"trades", "candles", "market_data", "burn_events"},
	})
}

func (c *Client) setConnected(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn != conn {
		c.conn.Close()
	}
	c.conn = conn
	c.connected = conn != nil
}

// Healthy reports whether the session is currently up.
func (c *Client) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// pump runs the read and write loops until either fails.
func (c *Client) pump(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readLoop()
	}()
	c.writeLoop(ctx, done)
}

func (c *Client) readLoop() {
	for {
		conn := c.currentConn()
		if conn == nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Msg("unreadable backend frame")
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writeLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case frame := <-c.sendQ:
			conn := c.currentConn()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Msg("backend write failed")
				return
			}
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) handle(msg Message) {
	switch msg.Event {
	case "subscribe_request":
		var data struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Room == "" {
			return
		}
		c.mu.Lock()
		c.rooms[data.Room]++
		c.mu.Unlock()
		log.Debug().Str("room", data.Room).Msg("backend subscribed room")

	case "unsubscribe_request":
		var data struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Room == "" {
			return
		}
		c.mu.Lock()
		if c.rooms[data.Room] > 0 {
			c.rooms[data.Room]--
		}
		if c.rooms[data.Room] == 0 {
			delete(c.rooms, data.Room)
		}
		c.mu.Unlock()

	case "ping":
		_ = c.Emit("pong", map[string]int64{"timestamp": time.Now().UTC().Unix()})

	case "chart_data_request":
		c.answer(msg, c.OnChartData)

	case "market_data_request":
		c.answer(msg, c.OnMarketData)

	default:
		log.Debug().Str("event", msg.Event).Msg("unhandled backend frame")
	}
}

func (c *Client) answer(msg Message, handler RequestHandler) {
	if handler == nil {
		return
	}
	var req DataRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.TokenAddress == "" {
		return
	}
	if payload, ok := handler(req); ok {
		_ = c.EmitRoom("token:"+req.TokenAddress, payload)
	}
}

// RoomCount reports how many backend clients a room currently has.
func (c *Client) RoomCount(room string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Emit queues a frame. Never blocks: when the queue is full the oldest
// pending frame is dropped with a warning.
func (c *Client) Emit(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(Message{Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}
	c.enqueue(frame)
	return nil
}

// EmitRoom pushes a room_message frame for room token:<token>.
func (c *Client) EmitRoom(room string, data interface{}) error {
	return c.Emit("room_message", map[string]interface{}{
		"room":         room,
		"data":         data,
		"client_count": c.RoomCount(room),
	})
}

// Broadcast pushes an event to every backend client.
func (c *Client) Broadcast(event string, data interface{}) error {
	return c.Emit("broadcast", map[string]interface{}{
		"event": event,
		"data":  data,
	})
}

func (c *Client) enqueue(frame []byte) {
	for {
		select {
		case c.sendQ <- frame:
			return
		default:
		}
		// Queue full: drop the oldest pending frame and retry.
		select {
		case <-c.sendQ:
			c.mu.Lock()
			c.drops++
			c.mu.Unlock()
			if c.OnDrop != nil {
				c.OnDrop()
			}
			log.Warn().Msg("backend send queue full; dropped oldest message")
		default:
		}
	}
}

// Drops reports how many frames drop-oldest backpressure has discarded.
func (c *Client) Drops() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.drops
}
