package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_DeliversRelayedChanges(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(NewHandler(hub, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "?topic="+TopicPatients)
	waitFor(t, func() bool { return hub.TopicCount(TopicPatients) == 1 })

	hub.Relay([]byte(insertPayload))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != insertPayload {
		t.Errorf("got %s", msg)
	}
}

func TestHandler_SubscribeMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(NewHandler(hub, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	if hub.TopicCount(TopicPatients) != 0 {
		t.Fatal("subscribed without asking")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{TopicPatients}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return hub.TopicCount(TopicPatients) == 1 })
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(NewHandler(hub, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "?topic="+TopicPatients)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}
