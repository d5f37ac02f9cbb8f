package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"papertrade/internal/metrics"
)

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(50, metrics.NewMetrics(prometheus.NewRegistry()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, h *Hub, srv *httptest.Server, account, query string) *websocket.Conn {
	t.Helper()
	want := h.ClientCount() + 1
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	hdr := http.Header{}
	if account != "" {
		hdr.Set(AccountHeader, account)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

// readN reads envelopes until n arrive; frames may carry several.
func readN(t *testing.T, conn *websocket.Conn, n int) []envelope {
	t.Helper()
	var out []envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(out) < n {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d envelopes: %v", len(out), err)
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var env envelope
			if err := json.Unmarshal(line, &env); err != nil {
				t.Fatalf("bad envelope %q: %v", line, err)
			}
			out = append(out, env)
		}
	}
	return out
}

func TestHub_TradesArePrivate(t *testing.T) {
	h, srv := newTestHub(t)
	a1 := dial(t, h, srv, "a1", "")

	h.Publish(ChannelTrades, "a2", map[string]string{"symbol": "TCS"})
	h.Publish(ChannelTrades, "a1", map[string]string{"symbol": "INFY"})
	h.Publish(ChannelSignals, "", map[string]string{"symbol": "SBIN"})

	got := readN(t, a1, 2)
	if got[0].Channel != ChannelTrades || !strings.Contains(string(got[0].Data), "INFY") {
		t.Errorf("first envelope: %+v", got[0])
	}
	if got[1].Channel != ChannelSignals || got[1].Seq != 3 {
		t.Errorf("second envelope: %+v", got[1])
	}
	if _, err := time.Parse(time.RFC3339Nano, got[0].TS); err != nil {
		t.Errorf("ts: %v", err)
	}
}

func TestHub_SubscribeFiltersChannels(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dial(t, h, srv, "a1", "")

	if err := conn.WriteJSON(controlMsg{Type: "SUBSCRIBE", Channels: []string{ChannelSignals}}); err != nil {
		t.Fatal(err)
	}
	// The ping round trip proves the subscription was applied.
	conn.WriteJSON(controlMsg{Ping: 1})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, frame, err := conn.ReadMessage(); err != nil || !strings.Contains(string(frame), "pong") {
		t.Fatalf("pong: %s %v", frame, err)
	}

	h.Publish(ChannelTrades, "a1", map[string]int{"id": 1})
	h.Publish(ChannelSignals, "", map[string]int{"id": 2})

	got := readN(t, conn, 1)
	if got[0].Channel != ChannelSignals {
		t.Errorf("unsubscribed channel delivered: %+v", got[0])
	}
}

func TestHub_BackfillSince(t *testing.T) {
	h, srv := newTestHub(t)
	for i := 0; i < 4; i++ {
		h.Publish(ChannelSignals, "", map[string]int{"i": i})
	}
	h.Publish(ChannelTrades, "other", map[string]int{"i": 9})

	conn := dial(t, h, srv, "a1", "?since=2")
	h.Publish(ChannelSignals, "", map[string]int{"i": 5})

	got := readN(t, conn, 3)
	want := []int64{3, 4, 6}
	for i, env := range got {
		if env.Seq != want[i] {
			t.Errorf("envelope %d: seq %d, want %d", i, env.Seq, want[i])
		}
	}
}

func TestHub_BadSince(t *testing.T) {
	_, srv := newTestHub(t)
	resp, err := http.Get(srv.URL + "/?since=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: %d", resp.StatusCode)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dial(t, h, srv, "a1", "")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(time.Millisecond)
	}
	h.Publish(ChannelSignals, "", 1) // must not panic on a closed send channel
	if h.Seq() != 1 {
		t.Errorf("seq: %d", h.Seq())
	}
}
