package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftchat/driftchat/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// startChatServer runs a WebSocket endpoint that hands each accepted
// connection, along with its 1-based attempt number, to the given script.
func startChatServer(t *testing.T, script func(ws *websocket.Conn, attempt int)) string {
	t.Helper()

	var attempts int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		script(ws, int(atomic.AddInt64(&attempts, 1)))
	}))
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func sendChat(t *testing.T, ws *websocket.Conn, id, message string) {
	t.Helper()
	data, err := protocol.Encode(protocol.EventChat, protocol.ChatMessage{
		ID:      id,
		Message: message,
		RoomID:  "ABC123",
	})
	if err != nil {
		t.Errorf("Encode failed: %v", err)
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Errorf("Write failed: %v", err)
	}
}

func recvChat(t *testing.T, conn *Conn) *protocol.ChatMessage {
	t.Helper()
	select {
	case ev, ok := <-conn.Events():
		if !ok {
			t.Fatal("Events channel closed unexpectedly")
		}
		msg, isChat := ev.Payload.(*protocol.ChatMessage)
		if !isChat {
			t.Fatalf("Expected chat event, got %s", ev.Type)
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for chat event")
		return nil
	}
}

// TestDuplicateDeliverySuppressed verifies that a chat event redelivered with
// the same id reaches the consumer only once.
func TestDuplicateDeliverySuppressed(t *testing.T) {
	url := startChatServer(t, func(ws *websocket.Conn, _ int) {
		sendChat(t, ws, "m1", "hello")
		sendChat(t, ws, "m1", "hello") // duplicate delivery
		sendChat(t, ws, "m2", "world")
	})

	conn := Dial(url, nil)
	defer func() { _ = conn.Close() }()

	if msg := recvChat(t, conn); msg.ID != "m1" {
		t.Errorf("First message id = %s, want m1", msg.ID)
	}
	if msg := recvChat(t, conn); msg.ID != "m2" {
		t.Errorf("Second message id = %s, want m2", msg.ID)
	}
}

// TestReconnectDoesNotRegressHistory simulates connected -> reconnecting ->
// connected with a replay after the reconnect: the dedup set must prevent
// re-delivery of already-seen messages while new ones still flow.
func TestReconnectDoesNotRegressHistory(t *testing.T) {
	url := startChatServer(t, func(ws *websocket.Conn, attempt int) {
		if attempt == 1 {
			sendChat(t, ws, "m1", "before the drop")
			_ = ws.Close() // simulate transport failure
			return
		}
		sendChat(t, ws, "m1", "before the drop") // replayed on reconnect
		sendChat(t, ws, "m2", "after the drop")
	})

	states := make(chan State, 16)
	conn := Dial(url, func(s State) { states <- s })
	defer func() { _ = conn.Close() }()

	if msg := recvChat(t, conn); msg.ID != "m1" {
		t.Errorf("Message before drop id = %s, want m1", msg.ID)
	}

	// Only m2 may arrive after the reconnect; a replayed m1 would show up
	// here instead.
	if msg := recvChat(t, conn); msg.ID != "m2" {
		t.Errorf("Message after reconnect id = %s, want m2 (m1 was replayed)", msg.ID)
	}

	waitForState := func(want State) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case s := <-states:
				if s == want {
					return
				}
			case <-deadline:
				t.Fatalf("Timed out waiting for state %s", want)
			}
		}
	}
	waitForState(StateConnected)
	waitForState(StateReconnecting)
	waitForState(StateConnected)
}

// TestSendWhileDisconnected verifies that send operations fail fast with
// ErrNotConnected instead of queueing while the transport is down.
func TestSendWhileDisconnected(t *testing.T) {
	// Nothing listens here; the client stays in the retry cycle.
	conn := Dial("ws://127.0.0.1:1/ws", nil)
	defer func() { _ = conn.Close() }()

	if err := conn.Chat("hello", "ABC123"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Chat while disconnected returned %v, want ErrNotConnected", err)
	}
}
