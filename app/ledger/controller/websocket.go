package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/boostfeed/stakeledger/pkg/heightcache"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "height.updated", "info", "error"
	Payload interface{} `json:"payload"` // Event-specific data
}

const (
	wsReadDeadline  = 60 * time.Second
	wsPingInterval  = 30 * time.Second
	wsWriteDeadline = 10 * time.Second
)

// HandleHeightStream upgrades the connection to a WebSocket and relays
// height.updated events from Redis Pub/Sub. Every sync that advances the
// cached height fans out here, so feed frontends can re-rank without polling.
//
// All goroutines have panic recovery to prevent crashes.
func (c *Controller) HandleHeightStream(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in Redis relay goroutine",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		c.relayHeightUpdates(ctx, send)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in ping ticker goroutine",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		c.sendPings(ctx, conn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in message writer goroutine",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		c.writeMessages(conn, send)
	}()

	// Block reading until the client goes away; the stream is one-way, so
	// reads only serve close and pong detection.
	c.readUntilClosed(ctx, conn, cancel)

	close(send)
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// relayHeightUpdates subscribes to the height.updated channel and forwards
// each event to the send channel, reconnecting with the cache's own backoff
// whenever Redis drops the subscription.
func (c *Controller) relayHeightUpdates(ctx context.Context, send chan<- ServerMessage) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
	)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.pumpHeightUpdates(ctx, send)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.App.Logger.Warn("height stream subscription lost, retrying",
				zap.Error(err),
				zap.Duration("backoff", backoff))
		}

		select {
		case send <- ServerMessage{Type: "error", Payload: map[string]any{
			"message":     "event stream interrupted, reconnecting...",
			"retryIn":     backoff.Seconds(),
			"recoverable": true,
		}}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pumpHeightUpdates runs one subscription until it drops or ctx ends.
func (c *Controller) pumpHeightUpdates(ctx context.Context, send chan<- ServerMessage) error {
	pubsub := c.App.RedisClient.Subscribe(ctx, heightcache.ChannelHeightUpdated)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var state heightcache.State
			if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
				c.App.Logger.Error("Failed to parse height update",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			select {
			case send <- ServerMessage{Type: "height.updated", Payload: state}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteDeadline)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readUntilClosed consumes client frames solely to detect disconnects and
// reset the read deadline via pongs.
func (c *Controller) readUntilClosed(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	if err := conn.SetReadDeadline(time.Now().Add(wsReadDeadline)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Error("WebSocket read error", zap.Error(err))
				}
				cancel()
				return
			}
			if err := conn.SetReadDeadline(time.Now().Add(wsReadDeadline)); err != nil {
				c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
				return
			}
		}
	}
}
