// Command client is a terminal chat client. It connects to a room-chat
// server, reconnecting forever with backoff, and maps stdin lines onto the
// protocol:
//
//	/create            create a room and join it
//	/join CODE NAME    join room CODE as NAME
//	/leave             leave the current room
//	/quit              exit
//	anything else      send as a chat message to the current room
//
// The server URL comes from SERVER_URL (default ws://localhost:8080/ws).
package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/driftchat/driftchat/internal/client"
	"github.com/driftchat/driftchat/internal/protocol"
)

func serverURL() string {
	if url := os.Getenv("SERVER_URL"); url != "" {
		return url
	}
	return "ws://localhost:8080/ws"
}

// session is the client-local view of the current room. It is touched only
// from the main goroutine; leave clears it immediately without waiting for
// any server confirmation.
type session struct {
	roomID   string
	username string
}

func main() {
	url := serverURL()
	fmt.Printf("Connecting to %s\n", url)

	conn := client.Dial(url, func(state client.State) {
		fmt.Printf("* connection %s\n", state)
	})
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("Error closing connection: %v", err)
		}
	}()

	sess := &session{}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			render(ev, sess)

		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(conn, sess, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handleLine executes one input line and reports whether the loop should
// keep running.
func handleLine(conn *client.Conn, sess *session, line string) bool {
	switch {
	case line == "":
		return true

	case line == "/quit":
		return false

	case line == "/create":
		reportSendError(conn.CreateRoom())
		return true

	case strings.HasPrefix(line, "/join"):
		fields := strings.Fields(line)
		if len(fields) < 3 {
			fmt.Println("Usage: /join CODE NAME")
			return true
		}
		sess.username = strings.Join(fields[2:], " ")
		reportSendError(conn.Join(sess.username, fields[1]))
		return true

	case line == "/leave":
		if sess.roomID == "" {
			fmt.Println("Not in a room")
			return true
		}
		reportSendError(conn.Leave())
		sess.roomID = ""
		fmt.Println("* left the room")
		return true

	default:
		if sess.roomID == "" {
			fmt.Println("Join or create a room first (/create or /join CODE NAME)")
			return true
		}
		reportSendError(conn.Chat(line, sess.roomID))
		return true
	}
}

func render(ev client.Event, sess *session) {
	switch payload := ev.Payload.(type) {
	case *protocol.RoomCreated:
		sess.roomID = payload.RoomID
		fmt.Printf("* room %s created; share the code to invite others\n", payload.RoomID)

	case *protocol.RoomJoined:
		sess.roomID = payload.RoomID
		fmt.Printf("* joined room %s as %s\n", payload.RoomID, payload.Username)

	case *protocol.UserJoined:
		fmt.Printf("* %s\n", payload.Message)

	case *protocol.UserLeft:
		fmt.Printf("* %s\n", payload.Message)

	case *protocol.ChatMessage:
		fmt.Printf("[%s] %s: %s\n", payload.RoomID, payload.Username, payload.Message)

	case *protocol.ErrorMessage:
		fmt.Printf("! %s\n", payload.Message)
	}
}

func reportSendError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, client.ErrNotConnected) {
		fmt.Println("! not connected; retrying in the background")
		return
	}
	fmt.Printf("! send failed: %v\n", err)
}
