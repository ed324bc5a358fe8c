package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSnapshotThenBroadcast(t *testing.T) {
	h := NewHub()
	h.Snapshot = func() any { return map[string]any{"type": "state", "to": "IDLE"} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	c := dial(t, srv)
	if m := readJSON(t, c); m["to"] != "IDLE" {
		t.Fatalf("snapshot = %v", m)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.BroadcastJSON(map[string]any{"type": "lock", "frequency_khz": 11778000})
	m := readJSON(t, c)
	if m["type"] != "lock" || m["frequency_khz"] != float64(11778000) {
		t.Fatalf("event = %v", m)
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := NewHub()
	for i := 0; i < broadcastSize+3; i++ {
		h.BroadcastJSON(i)
	}
	if got := h.Dropped(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
}

func TestBroadcastSkipsUnmarshalable(t *testing.T) {
	h := NewHub()
	h.BroadcastJSON(func() {})
	if len(h.broadcast) != 0 {
		t.Fatal("unmarshalable value was queued")
	}
	var _ Broadcaster = h
}
