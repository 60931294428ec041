// Package stream provides the websocket feeds: periodic trade and order
// book snapshots pushed to subscribers, with an application-level
// ping/pong liveness exchange.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Feed identifies one of the two subscription channels.
type Feed string

const (
	FeedTrades    Feed = "trades"
	FeedOrderBook Feed = "orderbook"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks the subscribers of each feed and fans broadcast payloads out
// to them. Slow clients are disconnected rather than allowed to stall the
// broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[Feed]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: map[Feed]map[*client]struct{}{
			FeedTrades:    {},
			FeedOrderBook: {},
		},
	}
}

// Subscribers reports the number of connections on a feed.
func (h *Hub) Subscribers(feed Feed) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[feed])
}

// Broadcast marshals the payload once and queues it to every subscriber of
// the feed.
func (h *Hub) Broadcast(feed Feed, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("feed", string(feed)).Msg("failed to marshal broadcast payload")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[feed] {
		select {
		case c.send <- data:
		default:
			// Queue full: the write pump is stuck, let it die.
			close(c.send)
			delete(h.clients[feed], c)
		}
	}
}

// Handler upgrades the connection and runs the read/write pumps for the
// given feed.
func (h *Hub) Handler(feed Feed) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("feed", string(feed)).Msg("websocket upgrade failed")
			return
		}

		c := &client{
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}
		h.register(feed, c)
		log.Info().Str("feed", string(feed)).Str("remote", conn.RemoteAddr().String()).Msg("subscriber connected")

		go c.writePump()
		c.readPump(h, feed)
	}
}

func (h *Hub) register(feed Feed, c *client) {
	h.mu.Lock()
	h.clients[feed][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(feed Feed, c *client) {
	h.mu.Lock()
	if _, ok := h.clients[feed][c]; ok {
		delete(h.clients[feed], c)
		close(c.send)
	}
	h.mu.Unlock()
}

// controlMessage is the client-to-server liveness envelope.
type controlMessage struct {
	Type string `json:"type"`
}

// readPump consumes client messages until the connection drops. A
// {"type":"ping"} is answered with {"type":"pong"}; anything else earns an
// error reply.
func (c *client) readPump(h *Hub, feed Feed) {
	defer func() {
		h.unregister(feed, c)
		c.conn.Close()
		log.Info().Str("feed", string(feed)).Msg("subscriber disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(map[string]string{"type": "error", "message": "Invalid JSON"})
			continue
		}

		switch msg.Type {
		case "ping":
			c.reply(map[string]string{"type": "pong"})
		default:
			c.reply(map[string]string{"type": "error", "message": "Unknown message type"})
		}
	}
}

func (c *client) reply(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump drains the send queue onto the socket and keeps the protocol
// level liveness going.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
