// Package testhelpers provides common utilities for testing the chat server.
//
// It contains reusable helpers shared by the integration tests: starting test
// servers, dialing WebSocket connections, and exchanging protocol envelopes,
// to reduce duplication in the test files.
package testhelpers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftchat/driftchat/internal/protocol"
)

// CreateTestServer creates a test HTTP server with the given handler. The
// returned server should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL converts a test server's base URL into its ws:// endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// MakeRequest executes an HTTP request with a 5-second timeout and fails the
// test if the request cannot be created or executed.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks that the HTTP response has the expected status.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// Conn wraps a WebSocket connection with envelope framing. The server may
// batch several queued envelopes, newline separated, into one WebSocket
// message; the wrapper splits them back out so tests see one envelope per
// receive.
type Conn struct {
	WS      *websocket.Conn
	pending [][]byte
}

// ConnectWebSocket dials the chat endpoint, failing the test on error. The
// connection is closed automatically when the test finishes.
func ConnectWebSocket(t *testing.T, url string) *Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, resp, err := dialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &Conn{WS: ws}
}

// SendEvent writes one protocol envelope to the connection.
func (c *Conn) SendEvent(t *testing.T, event string, payload any) {
	t.Helper()

	data, err := protocol.Encode(event, payload)
	if err != nil {
		t.Fatalf("Failed to encode %s event: %v", event, err)
	}
	if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

// ReceiveEvent reads the next envelope, asserting its event name. The read
// gives up after five seconds.
func (c *Conn) ReceiveEvent(t *testing.T, want string) *protocol.Envelope {
	t.Helper()

	data, ok := c.nextFrame(t, 5*time.Second)
	if !ok {
		t.Fatalf("Timed out waiting for %s event", want)
	}

	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Received undecodable frame: %v", err)
	}
	if env.Event != want {
		t.Fatalf("Expected %s event, got %s", want, env.Event)
	}
	return env
}

// AssertNoEvent verifies that nothing arrives on the connection within the
// given window. The underlying socket must not be used for reads afterwards;
// the expired deadline poisons it.
func (c *Conn) AssertNoEvent(t *testing.T, window time.Duration) {
	t.Helper()

	if data, ok := c.nextFrame(t, window); ok {
		t.Fatalf("Expected no event, got %s", data)
	}
}

func (c *Conn) nextFrame(t *testing.T, timeout time.Duration) ([]byte, bool) {
	t.Helper()

	if len(c.pending) > 0 {
		frame := c.pending[0]
		c.pending = c.pending[1:]
		return frame, true
	}

	if err := c.WS.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := c.WS.ReadMessage()
	if err != nil {
		return nil, false
	}

	frames := bytes.Split(data, []byte{'\n'})
	c.pending = append(c.pending, frames[1:]...)
	return frames[0], true
}

// BindEvent unmarshals the envelope payload into the target struct.
func BindEvent(t *testing.T, env *protocol.Envelope, v any) {
	t.Helper()
	if err := env.Bind(v); err != nil {
		t.Fatalf("Failed to bind %s payload: %v", env.Event, err)
	}
}

// Close performs a graceful close handshake.
func (c *Conn) Close() error {
	err := c.WS.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.WS.Close()
}
