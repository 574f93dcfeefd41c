// Package client implements the resilient consumer side of the chat
// protocol: a reconnecting WebSocket connection whose health is surfaced
// through the state machine and whose inbound chat stream is filtered by the
// message deduplicator.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/driftchat/driftchat/internal/protocol"
)

const (
	// handshakeTimeout bounds a single connection attempt.
	handshakeTimeout = 20 * time.Second

	// minRetryDelay and maxRetryDelay bound the doubling backoff between
	// attempts. The attempt count is unlimited.
	minRetryDelay = 1 * time.Second
	maxRetryDelay = 5 * time.Second

	// eventQueueSize buffers decoded events for the consumer.
	eventQueueSize = 64
)

// ErrNotConnected is returned by send operations while the transport is down.
// Requests are not queued across reconnects.
var ErrNotConnected = errors.New("client: not connected")

// Event is one decoded server-to-client event, delivered to the consumer in
// arrival order. Payload holds the typed payload for the event: see
// EventPayload for the mapping.
type Event struct {
	Type    string
	Payload any
}

// Conn is a room-chat client connection that reconnects forever. Dial starts
// it; Close ends it. Inbound events arrive on Events after deduplication, and
// connection-state changes are reported through the OnStateChange callback.
type Conn struct {
	url     string
	dialer  websocket.Dialer
	state   *StateMachine
	dedup   *MessageDeduplicator
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	writeMu sync.Mutex
	ws      *websocket.Conn
}

// Dial starts a connection to the chat server at url (a ws:// or wss://
// endpoint) and keeps it alive until Close. The initial attempt happens in
// the background; a failure there is not terminal, it just starts the retry
// cycle like any later drop.
func Dial(url string, onStateChange func(State)) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url: url,
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		state:  NewStateMachine(onStateChange),
		dedup:  NewMessageDeduplicator(),
		events: make(chan Event, eventQueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.run()
	return c
}

// Events returns the stream of deduplicated inbound events. The channel is
// closed after Close.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// State returns the connection state as of the last transport callback.
func (c *Conn) State() State {
	return c.state.Current()
}

// CreateRoom asks the server to allocate a fresh room with the caller as its
// sole member.
func (c *Conn) CreateRoom() error {
	return c.emit(protocol.EventCreate, struct{}{})
}

// Join asks the server to add the caller to an existing room under the given
// display name.
func (c *Conn) Join(username, roomID string) error {
	return c.emit(protocol.EventJoin, protocol.JoinRequest{Username: username, RoomID: roomID})
}

// Chat submits a message for fanout to a room. The caller receives its own
// message back as a chat event.
func (c *Conn) Chat(message, roomID string) error {
	return c.emit(protocol.EventChat, protocol.ChatRequest{Message: message, RoomID: roomID})
}

// Leave exits the current room. It is fire-and-forget: there is no
// acknowledgment to wait for, so callers clear local room state immediately.
func (c *Conn) Leave() error {
	return c.emit(protocol.EventLeave, struct{}{})
}

// Close tears the connection down and stops the retry loop. The Events
// channel is closed once the dispatch goroutine exits.
func (c *Conn) Close() error {
	c.cancel()
	c.state.Closed()

	c.writeMu.Lock()
	ws := c.ws
	c.ws = nil
	c.writeMu.Unlock()

	if ws != nil {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}

	<-c.done
	return nil
}

func (c *Conn) emit(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// run dials, reads until the connection drops, and retries with a doubling,
// capped delay. It is the only goroutine that decodes inbound frames, so the
// deduplicator and event ordering need no further coordination.
func (c *Conn) run() {
	defer close(c.done)
	defer close(c.events)

	retry := &backoff.Backoff{
		Min:    minRetryDelay,
		Max:    maxRetryDelay,
		Factor: 2,
	}
	connectedBefore := false

	for {
		if c.ctx.Err() != nil {
			return
		}

		ws, resp, err := c.dialer.DialContext(c.ctx, c.url, nil)
		if resp != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.state.ConnectFailed()
			select {
			case <-time.After(retry.Duration()):
				c.state.RetryStarted()
				continue
			case <-c.ctx.Done():
				return
			}
		}

		if connectedBefore {
			c.state.RetrySucceeded()
		} else {
			c.state.ConnectSucceeded()
			connectedBefore = true
		}
		retry.Reset()

		c.writeMu.Lock()
		c.ws = ws
		c.writeMu.Unlock()

		c.readLoop(ws)

		c.writeMu.Lock()
		c.ws = nil
		c.writeMu.Unlock()
		_ = ws.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.state.ConnectionLost()

		select {
		case <-time.After(retry.Duration()):
			c.state.RetryStarted()
		case <-c.ctx.Done():
			return
		}
	}
}

// readLoop decodes frames until the connection errors. The server batches
// queued envelopes into a single WebSocket message, so each message is
// drained with a JSON decoder rather than assuming one envelope per frame.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, r, err := ws.NextReader()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Connection read error: %v", err)
			}
			return
		}

		dec := json.NewDecoder(r)
		for {
			var env protocol.Envelope
			if err := dec.Decode(&env); err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("Discarding undecodable frame: %v", err)
				}
				break
			}
			c.dispatch(&env)
		}
	}
}

// dispatch decodes the envelope payload, runs chat events through the
// deduplicator, and delivers the event to the consumer.
func (c *Conn) dispatch(env *protocol.Envelope) {
	payload, err := EventPayload(env)
	if err != nil {
		log.Printf("Discarding %s event: %v", env.Event, err)
		return
	}

	if msg, ok := payload.(*protocol.ChatMessage); ok {
		if !c.dedup.ShouldAccept(msg.ID) {
			return
		}
	}

	select {
	case c.events <- Event{Type: env.Event, Payload: payload}:
	case <-c.ctx.Done():
	}
}

// EventPayload binds an envelope to its typed payload:
// roomCreated -> *protocol.RoomCreated, roomJoined -> *protocol.RoomJoined,
// userJoined -> *protocol.UserJoined, userLeft -> *protocol.UserLeft,
// chat -> *protocol.ChatMessage, error -> *protocol.ErrorMessage.
func EventPayload(env *protocol.Envelope) (any, error) {
	var payload any
	switch env.Event {
	case protocol.EventRoomCreated:
		payload = &protocol.RoomCreated{}
	case protocol.EventRoomJoined:
		payload = &protocol.RoomJoined{}
	case protocol.EventUserJoined:
		payload = &protocol.UserJoined{}
	case protocol.EventUserLeft:
		payload = &protocol.UserLeft{}
	case protocol.EventChat:
		payload = &protocol.ChatMessage{}
	case protocol.EventError:
		payload = &protocol.ErrorMessage{}
	default:
		return nil, errors.New("unknown event")
	}

	if err := env.Bind(payload); err != nil {
		return nil, err
	}
	return payload, nil
}
