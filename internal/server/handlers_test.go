package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestHealthEndpoints verifies the probe surface: / and /health answer 200
// with body OK, any other path is a 404.
func TestHealthEndpoints(t *testing.T) {
	mux := SetupRoutes()

	cases := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "OK"},
		{"/health", http.StatusOK, "OK"},
		{"/nope", http.StatusNotFound, ""},
		{"/health/extra", http.StatusNotFound, ""},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

		if rec.Code != tc.wantStatus {
			t.Errorf("GET %s: status = %d, want %d", tc.path, rec.Code, tc.wantStatus)
		}
		if tc.wantBody == "" {
			continue
		}
		body, _ := io.ReadAll(rec.Body)
		if string(body) != tc.wantBody {
			t.Errorf("GET %s: body = %q, want %q", tc.path, body, tc.wantBody)
		}
	}
}

// TestWebSocketHandlerRejectsNonGet verifies that the upgrade endpoint only
// accepts GET requests.
func TestWebSocketHandlerRejectsNonGet(t *testing.T) {
	rec := httptest.NewRecorder()
	WebSocketHandler(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /ws: status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
