// Package client tracks transport health as an explicit connection state
// machine rather than relying on a transport library's defaults.
package client

import "sync"

// State describes the health of the connection as observed by the client.
type State string

// Connection states. There is no permanent-failure state: the retry budget is
// unbounded, so a failed attempt always lands in StateReconnecting.
const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

// StateMachine mirrors the transport's connection lifecycle:
// connecting -> connected <-> reconnecting, with reconnecting persisting
// until a retry succeeds. Transitions are driven by transport callbacks and
// are purely observational; retry scheduling lives with the transport.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
}

// NewStateMachine creates a machine in the initial connecting state. The
// onChange callback, if non-nil, is invoked for every state change.
func NewStateMachine(onChange func(State)) *StateMachine {
	return &StateMachine{
		state:    StateConnecting,
		onChange: onChange,
	}
}

// Current returns the state as of the last transport callback.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectSucceeded records the initial connection being established.
func (m *StateMachine) ConnectSucceeded() {
	m.transition(StateConnected)
}

// ConnectFailed records a failed connection attempt. Initial failures are not
// terminal; the transport keeps retrying.
func (m *StateMachine) ConnectFailed() {
	m.transition(StateReconnecting)
}

// ConnectionLost records an established connection dropping.
func (m *StateMachine) ConnectionLost() {
	m.transition(StateReconnecting)
}

// RetryStarted records the transport beginning another connection attempt.
func (m *StateMachine) RetryStarted() {
	m.transition(StateReconnecting)
}

// RetrySucceeded records a reconnection attempt completing.
func (m *StateMachine) RetrySucceeded() {
	m.transition(StateConnected)
}

// Closed records the client shutting the connection down deliberately.
func (m *StateMachine) Closed() {
	m.transition(StateDisconnected)
}

func (m *StateMachine) transition(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}
