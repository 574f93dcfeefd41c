// Package server coordinates session registration, room membership, and event
// fanout for the chat service via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftchat/driftchat/internal/protocol"
)

// frame is one inbound wire frame attributed to the session that sent it.
type frame struct {
	sessionID string
	data      []byte
}

// Hub owns all connection-scoped state: the session table, the room registry,
// and the map from session id to live connection. A single goroutine running
// Run processes one event at a time, so every handler runs to completion
// before the next event and no locking is needed on the maps. Connection
// goroutines talk to the hub exclusively through its channels.
type Hub struct {
	registry *RoomRegistry
	sessions map[string]*Session
	clients  map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan frame

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub ready to accept connections once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRoomRegistry(),
		sessions:   make(map[string]*Session),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan frame),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// GetHub returns the process-wide hub instance for shutdown coordination.
func GetHub() *Hub {
	return hub
}

// Run is the hub's event loop. It must be the only goroutine touching the
// session table and registry; call it once, in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			if client != nil {
				h.dropSession(client.sessionID, "A user disconnected")
			}

		case f := <-h.inbound:
			h.dispatch(f)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return
	}

	h.clients[client.sessionID] = client
	h.sessions[client.sessionID] = &Session{ID: client.sessionID}
	log.Printf("Session %s connected from %s. Total sessions: %d", client.sessionID, client.addr, len(h.sessions))

	// Tests register clients without a live socket; only real connections
	// get pump goroutines.
	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// dispatch validates an inbound frame against the session table and routes it
// to the matching event handler. A failure here is logged and affects only
// the sending session, never the loop.
func (h *Hub) dispatch(f frame) {
	sess, ok := h.sessions[f.sessionID]
	if !ok {
		log.Printf("Dropping frame from unknown session %s", f.sessionID)
		return
	}

	env, err := protocol.Decode(f.data)
	if err != nil {
		log.Printf("Invalid frame from session %s: %v", f.sessionID, err)
		return
	}

	switch env.Event {
	case protocol.EventCreate:
		h.handleCreate(sess)
	case protocol.EventJoin:
		var req protocol.JoinRequest
		if err := env.Bind(&req); err != nil {
			log.Printf("Invalid join payload from session %s: %v", f.sessionID, err)
			return
		}
		h.handleJoin(sess, req)
	case protocol.EventChat:
		var req protocol.ChatRequest
		if err := env.Bind(&req); err != nil {
			log.Printf("Invalid chat payload from session %s: %v", f.sessionID, err)
			return
		}
		h.handleChat(sess, req)
	case protocol.EventLeave:
		h.handleLeave(sess)
	default:
		log.Printf("Unknown event %q from session %s", env.Event, f.sessionID)
	}
}

func (h *Hub) handleCreate(sess *Session) {
	roomID := h.registry.CreateRoom()

	// A session belongs to at most one room; creating while bound moves the
	// session silently out of its previous room.
	if sess.RoomID != "" {
		h.registry.RemoveMember(sess.RoomID, sess.ID)
	}
	if err := h.registry.AddMember(roomID, sess.ID); err != nil {
		log.Printf("Error adding creator %s to room %s: %v", sess.ID, roomID, err)
		return
	}
	sess.RoomID = roomID

	h.emitTo(sess.ID, protocol.EventRoomCreated, protocol.RoomCreated{
		RoomID: roomID,
		UserID: sess.ID,
	})
	log.Printf("Room %s created by session %s", roomID, sess.ID)
}

func (h *Hub) handleJoin(sess *Session, req protocol.JoinRequest) {
	if !h.registry.RoomExists(req.RoomID) {
		h.emitError(sess.ID, "Room not found")
		return
	}

	if sess.RoomID != "" && sess.RoomID != req.RoomID {
		h.registry.RemoveMember(sess.RoomID, sess.ID)
	}

	sess.DisplayName = req.Username
	sess.RoomID = req.RoomID
	if err := h.registry.AddMember(req.RoomID, sess.ID); err != nil {
		h.emitError(sess.ID, "Room not found")
		return
	}

	h.emitTo(sess.ID, protocol.EventRoomJoined, protocol.RoomJoined{
		RoomID:   req.RoomID,
		UserID:   sess.ID,
		Username: req.Username,
	})
	h.emitToRoom(req.RoomID, protocol.EventUserJoined, protocol.UserJoined{
		Username: req.Username,
		UserID:   sess.ID,
		Message:  req.Username + " joined the room",
	}, sess.ID)
	log.Printf("Session %s (%s) joined room %s", sess.ID, req.Username, req.RoomID)
}

func (h *Hub) handleChat(sess *Session, req protocol.ChatRequest) {
	if !h.registry.RoomExists(req.RoomID) {
		h.emitError(sess.ID, "Room not found")
		return
	}

	msg := protocol.ChatMessage{
		ID:        uuid.NewString(),
		Message:   req.Message,
		UserID:    sess.ID,
		Username:  sess.Name(),
		RoomID:    req.RoomID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	// The sender is not excluded: chat events echo back to their author.
	h.emitToRoom(req.RoomID, protocol.EventChat, msg, "")
	log.Printf("Message in room %s from %s", req.RoomID, msg.Username)
}

func (h *Hub) handleLeave(sess *Session) {
	if sess.RoomID == "" {
		return
	}

	roomID := sess.RoomID
	h.registry.RemoveMember(roomID, sess.ID)
	sess.RoomID = ""

	// No ack to the leaver; only the room hears about it.
	h.emitToRoom(roomID, protocol.EventUserLeft, protocol.UserLeft{
		UserID:  sess.ID,
		Message: "A user left the room",
	}, sess.ID)
	log.Printf("Session %s left room %s", sess.ID, roomID)
}

// dropSession removes a session and its connection, running leave side
// effects with the given departure wording first. It is the single teardown
// path shared by transport disconnects, slow-consumer drops, and shutdown,
// and is safe to call for sessions already removed.
func (h *Hub) dropSession(sessionID, departure string) {
	if client, ok := h.clients[sessionID]; ok {
		delete(h.clients, sessionID)
		client.closed = true
		close(client.send)
	}

	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)

	if sess.RoomID != "" {
		h.registry.RemoveMember(sess.RoomID, sessionID)
		h.emitToRoom(sess.RoomID, protocol.EventUserLeft, protocol.UserLeft{
			UserID:  sessionID,
			Message: departure,
		}, sessionID)
	}

	log.Printf("Session %s disconnected. Total sessions: %d", sessionID, len(h.sessions))
}

// emitTo sends a single event to exactly one session. Delivery is
// fire-and-forget: if the connection is gone or its queue is full the event
// is logged and dropped, and a full queue additionally drops the consumer.
func (h *Hub) emitTo(sessionID, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("Error encoding %s event for session %s: %v", event, sessionID, err)
		return
	}
	if !h.send(sessionID, data) {
		h.dropSession(sessionID, "A user disconnected")
	}
}

// emitToRoom fans an event out to every current member of a room. If
// excludeSessionID is non-empty that member is skipped; passing "" delivers
// to the sender as well. Per-sender, per-room ordering follows from each
// connection's single ordered send queue.
func (h *Hub) emitToRoom(roomID, event string, payload any, excludeSessionID string) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("Error encoding %s event for room %s: %v", event, roomID, err)
		return
	}

	var failed []string
	for _, memberID := range h.registry.Members(roomID) {
		if memberID == excludeSessionID {
			continue
		}
		if !h.send(memberID, data) {
			failed = append(failed, memberID)
		}
	}

	for _, memberID := range failed {
		h.dropSession(memberID, "A user disconnected")
	}
}

func (h *Hub) emitError(sessionID, message string) {
	h.emitTo(sessionID, protocol.EventError, protocol.ErrorMessage{Message: message})
}

// send queues a frame on a session's connection without blocking the loop.
// It reports false when the session has no usable connection or its queue is
// full, leaving the drop decision to the caller.
func (h *Hub) send(sessionID string, data []byte) bool {
	client, ok := h.clients[sessionID]
	if !ok || client.closed {
		log.Printf("Dropping event for session %s: connection closed", sessionID)
		return true
	}

	select {
	case client.send <- data:
		return true
	default:
		log.Printf("Send queue full for session %s; dropping connection", sessionID)
		return false
	}
}

// closeAllConnections closes every live socket during shutdown. The read
// pumps observe the close and funnel the sessions through the normal
// unregister path.
func (h *Hub) closeAllConnections() {
	log.Println("Shutting down all client connections...")

	count := 0
	for _, client := range h.clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection from %s: %v", client.addr, err)
		}
		count++
	}

	log.Printf("Closed %d client connections", count)
}

// Shutdown stops the event loop and waits for all connection goroutines to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
