package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"BeliefMarket/internal/event"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Msg is the wire shape pushed to subscribers.
type Msg struct {
	Type      string      `json:"type"`
	MarketKey string      `json:"market_key"`
	Data      interface{} `json:"data"`
}

// Hub manages per-market WebSocket subscriptions. Clients subscribe to one
// market at a time; slow clients get dropped messages, not backpressure.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*conn]bool // market key -> subscribers
	conns map[*conn]bool
	log   zerolog.Logger

	dropped func() // metrics hook, may be nil
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	market string
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*conn]bool),
		conns: make(map[*conn]bool),
		log:   log,
	}
}

// OnDrop registers a callback invoked once per message dropped on a full
// client buffer.
func (h *Hub) OnDrop(fn func()) { h.dropped = fn }

// Emitter adapts the hub to the engine's telemetry fanout: each envelope is
// broadcast to the subscribers of its market.
func (h *Hub) Emitter() event.Emitter {
	return event.EmitterFunc(func(_ context.Context, env event.Envelope) {
		if env.MarketKey == "" {
			return
		}
		h.Publish(env.MarketKey, env.TypeName, env.Payload)
	})
}

// Publish sends a message to all subscribers of a market.
func (h *Hub) Publish(marketKey, msgType string, data interface{}) {
	b, err := json.Marshal(Msg{Type: msgType, MarketKey: marketKey, Data: data})
	if err != nil {
		return
	}
	// The read lock is held across the whole loop: it excludes room
	// mutation and the send-channel close in removeConn, and the sends
	// never block because a full buffer drops the message instead.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[marketKey] {
		select {
		case c.send <- b:
		default:
			if h.dropped != nil {
				h.dropped()
			}
		}
	}
}

// HandleWS upgrades the connection and starts the client pumps.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &conn{
		ws:   wsConn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		var sub struct {
			Action    string `json:"action"`
			MarketKey string `json:"market_key"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.hub.subscribe(c, sub.MarketKey)
		case "unsubscribe":
			c.hub.unsubscribe(c, sub.MarketKey)
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

func (h *Hub) subscribe(c *conn, marketKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.market != "" {
		h.leaveRoomLocked(c, c.market)
	}
	c.market = marketKey
	room, ok := h.rooms[marketKey]
	if !ok {
		room = make(map[*conn]bool)
		h.rooms[marketKey] = room
	}
	room[c] = true
}

func (h *Hub) unsubscribe(c *conn, marketKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(c, marketKey)
	if c.market == marketKey {
		c.market = ""
	}
}

func (h *Hub) leaveRoomLocked(c *conn, marketKey string) {
	if room, ok := h.rooms[marketKey]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, marketKey)
		}
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	if c.market != "" {
		h.leaveRoomLocked(c, c.market)
	}
	close(c.send)
}
