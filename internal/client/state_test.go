package client

import "testing"

// TestInitialState verifies that a fresh machine starts out connecting.
func TestInitialState(t *testing.T) {
	m := NewStateMachine(nil)
	if got := m.Current(); got != StateConnecting {
		t.Errorf("Initial state = %s, want %s", got, StateConnecting)
	}
}

// TestFailedInitialAttemptIsNotTerminal verifies that a failed first dial
// lands in reconnecting, not a permanent failure state.
func TestFailedInitialAttemptIsNotTerminal(t *testing.T) {
	m := NewStateMachine(nil)

	m.ConnectFailed()
	if got := m.Current(); got != StateReconnecting {
		t.Errorf("State after failed initial attempt = %s, want %s", got, StateReconnecting)
	}

	m.RetrySucceeded()
	if got := m.Current(); got != StateConnected {
		t.Errorf("State after successful retry = %s, want %s", got, StateConnected)
	}
}

// TestReconnectCycle verifies the connected <-> reconnecting cycle and that
// observers see each transition exactly once.
func TestReconnectCycle(t *testing.T) {
	var observed []State
	m := NewStateMachine(func(s State) {
		observed = append(observed, s)
	})

	m.ConnectSucceeded()
	m.ConnectionLost()
	m.RetryStarted() // already reconnecting, no duplicate notification
	m.RetrySucceeded()
	m.Closed()

	want := []State{StateConnected, StateReconnecting, StateConnected, StateDisconnected}
	if len(observed) != len(want) {
		t.Fatalf("Observed %d transitions %v, want %d", len(observed), observed, len(want))
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("Transition %d = %s, want %s", i, observed[i], want[i])
		}
	}
}
