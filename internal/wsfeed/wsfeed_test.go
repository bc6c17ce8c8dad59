package wsfeed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vistadeck/hostd/internal/operations"
	"github.com/vistadeck/hostd/internal/statemachine"
)

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastDeliversToConnectedClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialFeed(t, srv)

	// Give the server goroutine time to register the client before
	// broadcasting; readPump's registration happens synchronously in
	// ServeHTTP before the handler returns, but the TCP accept/upgrade
	// handshake itself is async from this goroutine's perspective.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(Event{Type: EventState, State: "waiting"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventState || ev.State != "waiting" {
		t.Errorf("got %+v", ev)
	}
}

func TestRunForwardsSignalsUntilChannelClosed(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialFeed(t, srv)
	time.Sleep(50 * time.Millisecond)

	signals := make(chan statemachine.Signal, 1)
	ctx, cancel := context.Background(), func() {}
	_ = cancel
	go hub.Run(ctx, signals)

	signals <- statemachine.Signal{
		Kind:     statemachine.ApplyResultSignal,
		Status:   operations.Ok,
		Verified: true,
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventSignal || ev.SignalKind != "apply_result" || !ev.Verified {
		t.Errorf("got %+v", ev)
	}
	close(signals)
}

func TestSlowClientEventsAreDroppedNotBlocked(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	dialFeed(t, srv)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < clientSendBuf+10; i++ {
		hub.Broadcast(Event{Type: EventState, State: "waiting"})
	}
}
