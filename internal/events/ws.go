package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	shutdownReason    = "shutting down"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is the wire shape of every frame a client may send
// (spec.md §4.6 protocol).
type clientMessage struct {
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// serverMessage is the wire shape of every frame the server may send. Only
// the fields relevant to Type are populated.
type serverMessage struct {
	Type    string         `json:"type"`
	Payload *WorkflowEvent `json:"payload,omitempty"`
	Count   int            `json:"count,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Connection is one subscribed WebSocket client. It implements Subscriber
// so the Bus can deliver to it directly through the Manager.
type Connection struct {
	ws   *websocket.Conn
	send chan serverMessage

	mu          sync.Mutex
	filters     map[string]bool // empty = subscribe-all
	backfilling bool
	pendingLive []WorkflowEvent
}

func newConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ws:      ws,
		send:    make(chan serverMessage, 256),
		filters: make(map[string]bool),
	}
}

func (c *Connection) matches(workflowID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.filters) == 0 {
		return true
	}
	return c.filters[workflowID]
}

// Notify implements Subscriber. While a backfill is in flight, live events
// are queued rather than enqueued directly so the client sees backfilled
// history before any live event that arrived during the backfill window
// (spec.md §4.6 "Live events emitted during backfill are queued and
// flushed after backfill_complete to preserve order").
func (c *Connection) Notify(e WorkflowEvent) {
	if !c.matches(e.WorkflowID) {
		return
	}
	c.mu.Lock()
	if c.backfilling {
		c.pendingLive = append(c.pendingLive, e)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.enqueue(serverMessage{Type: "event", Payload: &e})
}

// enqueue drops the message if the client's send buffer is full rather than
// blocking the Bus's fan-out goroutine; per spec.md §4.6, live delivery is
// at-most-once, so a dropped frame is recoverable via reconnect-backfill.
func (c *Connection) enqueue(msg serverMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Connection) runBackfill(ctx context.Context, log EventLog, since string) {
	defer func() {
		c.mu.Lock()
		pending := c.pendingLive
		c.pendingLive = nil
		c.backfilling = false
		c.mu.Unlock()
		for _, e := range pending {
			ev := e
			c.enqueue(serverMessage{Type: "event", Payload: &ev})
		}
	}()

	anchor, ok, err := log.Lookup(ctx, since)
	if err != nil || !ok {
		msg := "no such event; it may have been swept by retention"
		if err != nil {
			msg = err.Error()
		}
		c.enqueue(serverMessage{Type: "backfill_expired", Message: msg})
		return
	}

	later, err := log.After(ctx, anchor.WorkflowID, anchor.Sequence)
	if err != nil {
		c.enqueue(serverMessage{Type: "backfill_expired", Message: err.Error()})
		return
	}
	for _, e := range later {
		ev := e
		c.enqueue(serverMessage{Type: "event", Payload: &ev})
	}
	c.enqueue(serverMessage{Type: "backfill_complete", Count: len(later)})
}

// Manager is the connection registry: it tracks every live Connection and
// implements Subscriber itself, fanning each event out to whichever
// connections currently match it (spec.md §4.6, §5 "mutex-protected;
// short critical sections for subscribe/unsubscribe and iteration
// snapshots under broadcast").
type Manager struct {
	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// NewManager builds an empty connection registry.
func NewManager() *Manager {
	return &Manager{conns: make(map[*Connection]struct{})}
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c] = struct{}{}
}

func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, c)
}

// Notify implements Subscriber, snapshotting the connection set under the
// lock and delivering outside it so a slow connection's channel send never
// extends the critical section.
func (m *Manager) Notify(e WorkflowEvent) {
	m.mu.Lock()
	snapshot := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()

	for _, c := range snapshot {
		c.Notify(e)
	}
}

// Shutdown closes every connection with close code 1001 and drops any
// pending broadcasts, per spec.md §4.6 "Graceful shutdown".
func (m *Manager) Shutdown() {
	m.mu.Lock()
	snapshot := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.conns = make(map[*Connection]struct{})
	m.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, shutdownReason)
	for _, c := range snapshot {
		_ = c.ws.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		_ = c.ws.Close()
	}
}

// Handler upgrades the request to a WebSocket and serves the event
// protocol for its lifetime, registering with m so Bus-delivered events
// reach it. log backs the optional `?since=` reconnect-backfill.
// authenticate, if non-nil, is run once per connection immediately after
// the upgrade; a non-nil error closes the socket with 1008 (policy
// violation) instead of registering it (spec.md §8 Invariant 6 — the HTTP
// handshake has already completed by this point, so an auth failure here
// can't be reported as a 401).
func Handler(m *Manager, log EventLog, authenticate func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		if authenticate != nil {
			if err := authenticate(r); err != nil {
				closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
				_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
				_ = ws.Close()
				return
			}
		}

		c := newConnection(ws)
		since := r.URL.Query().Get("since")
		if since != "" && log != nil {
			c.backfilling = true
		}

		m.register(c)
		defer m.unregister(c)
		defer func() { _ = ws.Close() }()

		if since != "" && log != nil {
			go c.runBackfill(r.Context(), log, since)
		}

		done := make(chan struct{})
		go c.readPump(done)
		c.writePump(done)
	}
}

// readPump processes subscribe/unsubscribe/subscribe_all/pong frames from
// the client until the connection closes.
func (c *Connection) readPump(done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.mu.Lock()
			c.filters[msg.WorkflowID] = true
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			delete(c.filters, msg.WorkflowID)
			c.mu.Unlock()
		case "subscribe_all":
			c.mu.Lock()
			c.filters = make(map[string]bool)
			c.mu.Unlock()
		case "pong":
			// Observability only; a missed pong never forces a close here
			// (spec.md §4.6 "Heartbeat") — TCP keepalive is what actually
			// detects a dead peer.
		}
	}
}

// writePump owns every write to the underlying connection: queued server
// messages and the 30s heartbeat ping, per spec.md §4.6.
func (c *Connection) writePump(done chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(serverMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}
}
