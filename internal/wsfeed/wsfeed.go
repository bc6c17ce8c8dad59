// Package wsfeed broadcasts state-machine transitions to local
// observers over a WebSocket: the CLI's `status --watch` subcommand
// and integration tests that want to observe signal ordering without
// reaching into the state machine directly (spec.md §6). Grounded on
// the teacher's internal/websocket.Client, which holds a single
// outbound connection to a remote server with a read/write pump and a
// ping ticker; wsfeed inverts that into a local server broadcasting to
// any number of connected clients, reusing the same gorilla/websocket
// dependency and the same ping/pong keepalive idiom.
package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vistadeck/hostd/internal/logging"
	"github.com/vistadeck/hostd/internal/statemachine"
)

var log = logging.L("wsfeed")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientSendBuf  = 32
)

// EventType distinguishes the feed's payload shapes.
type EventType string

const (
	EventSignal EventType = "signal"
	EventState  EventType = "state_change"
)

// Event is one frame of the feed. Signal events mirror
// statemachine.Signal; State events report a bare transition, useful
// for `status --watch` to render a live state label even between
// signals.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	SignalKind string `json:"signalKind,omitempty"`
	Status     string `json:"status,omitempty"`
	Verified   bool   `json:"verified,omitempty"`
	ExitCode   int    `json:"exitCode,omitempty"`

	State string `json:"state,omitempty"`
}

func signalKindName(k statemachine.SignalKind) string {
	switch k {
	case statemachine.ApplyResultSignal:
		return "apply_result"
	case statemachine.VerificationResultSignal:
		return "verification_result"
	case statemachine.ExitSignal:
		return "exit"
	default:
		return "unknown"
	}
}

// signalEvent converts a statemachine.Signal into a wire Event.
func signalEvent(sig statemachine.Signal) Event {
	return Event{
		Type:       EventSignal,
		Timestamp:  time.Now(),
		SignalKind: signalKindName(sig.Kind),
		Status:     sig.Status.String(),
		Verified:   sig.Verified,
		ExitCode:   sig.ExitCode,
	}
}

// StateEvent builds a state-change Event for a new State value.
func StateEvent(s statemachine.State) Event {
	return Event{Type: EventState, Timestamp: time.Now(), State: s.String()}
}

// Hub fans out events to any number of connected WebSocket clients.
// The zero value is not usable; construct with NewHub.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub constructs an empty Hub. Local-only use means the upgrader
// accepts any origin; this feed is never exposed beyond localhost.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// resulting client for broadcast until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", logging.KeyError, err.Error())
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientSendBuf)}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// Broadcast delivers an event to every connected client. Slow clients
// are dropped rather than allowed to block the feed: an observer that
// can't keep up should reconnect and re-render from /status instead of
// stalling the control plane.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			log.Warn("dropping event for slow client")
		}
	}
}

// Run drains signals off the state machine and broadcasts them until
// ctx is cancelled. Call this once per Hub from the daemon's startup.
func (h *Hub) Run(ctx context.Context, signals <-chan statemachine.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			h.Broadcast(signalEvent(sig))
		}
	}
}

func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Warn("marshal event failed", logging.KeyError, err.Error())
				continue
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
