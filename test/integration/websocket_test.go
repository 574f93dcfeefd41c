// Package integration contains end-to-end tests that exercise the chat
// server over real WebSocket connections: room lifecycle, fanout, presence,
// and the probe surface.
package integration

import (
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/driftchat/driftchat/internal/protocol"
	"github.com/driftchat/driftchat/internal/server"
	"github.com/driftchat/driftchat/test/testhelpers"
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestMain(m *testing.M) {
	server.SetConfig(nil)
	server.StartHub()
	os.Exit(m.Run())
}

func startServer(t *testing.T) string {
	t.Helper()
	ts := testhelpers.CreateTestServer(server.SetupRoutes())
	t.Cleanup(ts.Close)
	return testhelpers.WebSocketURL(ts)
}

// createRoom drives the create flow and returns the allocated room code and
// the creator's user id.
func createRoom(t *testing.T, conn *testhelpers.Conn) (string, string) {
	t.Helper()
	conn.SendEvent(t, protocol.EventCreate, struct{}{})

	var created protocol.RoomCreated
	testhelpers.BindEvent(t, conn.ReceiveEvent(t, protocol.EventRoomCreated), &created)
	if !roomCodePattern.MatchString(created.RoomID) {
		t.Fatalf("Room code %q does not match %s", created.RoomID, roomCodePattern)
	}
	return created.RoomID, created.UserID
}

// TestCreateJoinChatLeaveFlow walks two clients through the whole room
// lifecycle and checks every event along the way.
func TestCreateJoinChatLeaveFlow(t *testing.T) {
	url := startServer(t)

	alice := testhelpers.ConnectWebSocket(t, url)
	bob := testhelpers.ConnectWebSocket(t, url)

	roomID, aliceID := createRoom(t, alice)

	// Bob joins; he is acked, Alice hears the presence event, Bob does not
	// hear his own join.
	bob.SendEvent(t, protocol.EventJoin, protocol.JoinRequest{Username: "bob", RoomID: roomID})

	var joined protocol.RoomJoined
	testhelpers.BindEvent(t, bob.ReceiveEvent(t, protocol.EventRoomJoined), &joined)
	if joined.RoomID != roomID || joined.Username != "bob" {
		t.Fatalf("Unexpected roomJoined payload: %+v", joined)
	}
	bobID := joined.UserID

	var presence protocol.UserJoined
	testhelpers.BindEvent(t, alice.ReceiveEvent(t, protocol.EventUserJoined), &presence)
	if presence.UserID != bobID || presence.Message != "bob joined the room" {
		t.Fatalf("Unexpected userJoined payload: %+v", presence)
	}

	// Bob chats; both members receive the identical message, sender included.
	bob.SendEvent(t, protocol.EventChat, protocol.ChatRequest{Message: "hi", RoomID: roomID})

	var toBob, toAlice protocol.ChatMessage
	testhelpers.BindEvent(t, bob.ReceiveEvent(t, protocol.EventChat), &toBob)
	testhelpers.BindEvent(t, alice.ReceiveEvent(t, protocol.EventChat), &toAlice)

	if toBob != toAlice {
		t.Errorf("Chat payload differs between members: %+v vs %+v", toBob, toAlice)
	}
	if toBob.UserID != bobID || toBob.Message != "hi" || toBob.RoomID != roomID {
		t.Errorf("Unexpected chat payload: %+v", toBob)
	}
	if toBob.ID == "" {
		t.Error("Chat message has no id")
	}
	if _, err := time.Parse(time.RFC3339, toBob.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", toBob.Timestamp, err)
	}

	// A second send of the same text carries a fresh id.
	bob.SendEvent(t, protocol.EventChat, protocol.ChatRequest{Message: "hi", RoomID: roomID})
	var second protocol.ChatMessage
	testhelpers.BindEvent(t, bob.ReceiveEvent(t, protocol.EventChat), &second)
	alice.ReceiveEvent(t, protocol.EventChat)
	if second.ID == toBob.ID {
		t.Errorf("Two sends share message id %s", second.ID)
	}

	// Bob leaves; Alice hears it, and later chat no longer reaches Bob.
	bob.SendEvent(t, protocol.EventLeave, struct{}{})

	var left protocol.UserLeft
	testhelpers.BindEvent(t, alice.ReceiveEvent(t, protocol.EventUserLeft), &left)
	if left.UserID != bobID || left.Message != "A user left the room" {
		t.Errorf("Unexpected userLeft payload: %+v", left)
	}

	alice.SendEvent(t, protocol.EventChat, protocol.ChatRequest{Message: "anyone?", RoomID: roomID})
	var alone protocol.ChatMessage
	testhelpers.BindEvent(t, alice.ReceiveEvent(t, protocol.EventChat), &alone)
	if alone.UserID != aliceID {
		t.Errorf("Unexpected sender on post-leave chat: %+v", alone)
	}
	bob.AssertNoEvent(t, 300*time.Millisecond)
}

// TestJoinUnknownRoomOverWire verifies that joining a room code that was
// never created yields only an error event.
func TestJoinUnknownRoomOverWire(t *testing.T) {
	url := startServer(t)
	conn := testhelpers.ConnectWebSocket(t, url)

	conn.SendEvent(t, protocol.EventJoin, protocol.JoinRequest{Username: "mallory", RoomID: "NOROOM"})

	var errMsg protocol.ErrorMessage
	testhelpers.BindEvent(t, conn.ReceiveEvent(t, protocol.EventError), &errMsg)
	if errMsg.Message != "Room not found" {
		t.Errorf("Expected %q, got %q", "Room not found", errMsg.Message)
	}
	conn.AssertNoEvent(t, 300*time.Millisecond)
}

// TestDisconnectBroadcastsUserLeft verifies that dropping the transport runs
// leave side effects with the disconnect wording.
func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	url := startServer(t)

	alice := testhelpers.ConnectWebSocket(t, url)
	bob := testhelpers.ConnectWebSocket(t, url)

	roomID, _ := createRoom(t, alice)
	bob.SendEvent(t, protocol.EventJoin, protocol.JoinRequest{Username: "bob", RoomID: roomID})
	bob.ReceiveEvent(t, protocol.EventRoomJoined)
	alice.ReceiveEvent(t, protocol.EventUserJoined)

	// Abrupt close, no close handshake.
	_ = bob.WS.Close()

	var left protocol.UserLeft
	testhelpers.BindEvent(t, alice.ReceiveEvent(t, protocol.EventUserLeft), &left)
	if left.Message != "A user disconnected" {
		t.Errorf("Expected disconnect wording, got %q", left.Message)
	}
}
