// Package gateway streams trade fills and signal recommendations to
// websocket clients.
//
// Every event is wrapped in an envelope {"channel","data","ts","seq"} with a
// hub-wide sequence number. Trade events are private to the account that
// placed the order; signal events are public. A client reconnecting with
// ?since=<seq> is backfilled from the replay buffer before live events.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertrade/internal/metrics"
)

// Channels.
const (
	ChannelTrades  = "trades"
	ChannelSignals = "signals"
)

// AccountHeader carries the account id resolved by the upstream auth proxy.
const AccountHeader = "X-Account-ID"

// Hub manages websocket clients and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay   *ReplayBuffer
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHub creates a hub keeping the last replaySize envelopes for backfill.
func NewHub(replaySize int, m *metrics.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: m,
		log:     log.With("component", "gateway"),
	}
}

// Publish sends data on channel. A non-empty account restricts delivery to
// that account's clients.
func (h *Hub) Publish(channel, account string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error("marshal event", "channel", channel, "error", err)
		return
	}
	now := time.Now().UTC()

	// Sequencing, replay and fan-out share one critical section so a
	// connecting client sees every event exactly once, in order.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	seq := h.seq

	buf := make([]byte, 0, len(channel)+len(payload)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, payload...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')

	entry := replayEntry{Seq: seq, Channel: channel, Account: account, Data: buf}
	h.replay.Push(entry)

	for client := range h.clients {
		if !client.wants(entry) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			h.log.Warn("client send buffer full, dropping event", "account", client.account, "seq", seq)
		}
	}
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative sequence number", http.StatusBadRequest)
			return
		}
		since = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h, conn, r.Header.Get(AccountHeader))

	h.mu.Lock()
	if r.URL.Query().Has("since") {
		client.backfill(since+1, h.seq)
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)
	h.log.Info("ws client connected", "account", client.account, "clients", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.metrics.SetWSClients(count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last published event.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
