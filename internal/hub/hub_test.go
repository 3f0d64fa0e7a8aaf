package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialViewer(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(serverURL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, h.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesEveryViewer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	first := dialViewer(t, server.URL)
	second := dialViewer(t, server.URL)
	waitForClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"type": "scan_completed"}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if string(msg) != `{"type":"scan_completed"}` {
			t.Errorf("Unexpected message %s", msg)
		}
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	conn := dialViewer(t, server.URL)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	h := NewHub()
	for i := 0; i < broadcastQueue; i++ {
		if !h.Broadcast([]byte("x")) {
			t.Fatalf("Expected message %d to be queued", i)
		}
	}
	if h.Broadcast([]byte("overflow")) {
		t.Error("Expected a full queue to drop the message")
	}
}
