package integration

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/driftchat/driftchat/internal/server"
)

// TestHubShutdownCompletes verifies that a hub with live state shuts down
// within its timeout. A dedicated hub is used so the shared one keeps serving
// the other tests.
func TestHubShutdownCompletes(t *testing.T) {
	h := server.NewHub()
	go h.Run()

	if err := h.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Hub shutdown failed: %v", err)
	}
}

// TestServerGracefulShutdown verifies that ShutdownServer stops a listening
// server and that StartServer reports the expected closed-server error.
func TestServerGracefulShutdown(t *testing.T) {
	httpServer := server.CreateServer("127.0.0.1:0", server.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	// Give the listener a moment to come up before tearing it down.
	time.Sleep(100 * time.Millisecond)

	if err := server.ShutdownServer(httpServer, 2*time.Second); err != nil {
		t.Errorf("ShutdownServer failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("StartServer returned %v, want http.ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("StartServer did not return after shutdown")
	}
}
