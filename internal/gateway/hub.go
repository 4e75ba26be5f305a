// Package gateway fans cycle results out to WebSocket clients.
//
// Every message is an envelope {"type":...,"data":...,"ts":...,"seq":N}
// with a hub-wide sequence number. A client that reconnects with
// ?since=N receives the envelopes it missed from a replay buffer, or the
// latest cycle when the gap is no longer buffered.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mtf-tracker/internal/tracker"
)

// Message types.
const (
	TypeCycle = "cycle"
	TypeError = "error"
)

const sendQueueSize = 64

// Hub manages WebSocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte // last cycle envelope
	seq     int64

	replay   *ReplayBuffer
	upgrader websocket.Upgrader
	log      *zap.Logger

	// OnClients is called with the client count after every connect and
	// disconnect.
	OnClients func(n int)
}

// NewHub creates a hub keeping the last replaySize envelopes for
// reconnecting clients.
func NewHub(replaySize int, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// dashboards are served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.Named("gateway"),
	}
}

// Publish broadcasts a cycle result. It implements tracker.Publisher.
// Failed cycles go out as TypeError and do not replace the latest cycle.
func (h *Hub) Publish(_ context.Context, res *tracker.CycleResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if !res.OK() {
		h.Broadcast(TypeError, data)
		return nil
	}
	h.Broadcast(TypeCycle, data)
	return nil
}

// Broadcast wraps data in an envelope and sends it to every client. Slow
// clients whose queue is full miss the message and catch up via ?since.
// The lock is held from numbering to fan-out so every queue sees envelopes
// in seq order.
func (h *Hub) Broadcast(msgType string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	seq := h.seq
	buf := buildEnvelope(msgType, data, now, seq)
	if msgType == TypeCycle {
		h.latest = buf
	}
	h.replay.Push(seq, buf)

	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

// buildEnvelope hand-crafts the envelope JSON; data must already be JSON.
func buildEnvelope(msgType string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(msgType)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, msgType...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	var since int64 = -1
	if v := r.URL.Query().Get("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			since = n
		}
	}
	h.register(conn, since)
}

func (h *Hub) register(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		hub:  h,
	}

	h.mu.Lock()
	// queue the backlog before the client becomes visible to Broadcast
	for _, msg := range h.backlog(since) {
		client.send <- msg
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.Int("clients", count))
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go client.writePump()
	go client.readPump()
}

// backlog returns what a new client should see first. Callers hold h.mu.
func (h *Hub) backlog(since int64) [][]byte {
	if since >= 0 && since <= h.seq {
		entries, complete := h.replay.After(since)
		if complete && len(entries) <= sendQueueSize {
			out := make([][]byte, len(entries))
			for i, e := range entries {
				out[i] = e.Data
			}
			return out
		}
	}
	// unknown or too old a position: start from the latest cycle
	if h.latest != nil {
		return [][]byte{h.latest}
	}
	return nil
}

// resend queues the backlog after since for one client, for clients that
// detect a sequence gap without reconnecting.
func (h *Hub) resend(c *Client, since int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return 0
	}
	n := 0
	for _, msg := range h.backlog(since) {
		select {
		case c.send <- msg:
			n++
		default:
			return n
		}
	}
	return n
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", zap.Int("clients", count))
	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}
