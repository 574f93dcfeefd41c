// Package server holds the session records that back each live connection.
package server

// anonymousName is the display name used for sessions that never joined a
// room with a username.
const anonymousName = "Anonymous"

// Session is the server-side record of one live connection. It is owned by
// the hub's session table, keyed by the connection's session id; the
// connection object holds only the key, never the record.
type Session struct {
	// ID is opaque, unique, and stable for the connection's lifetime. It is
	// assigned by the transport layer when the connection is accepted.
	ID string

	// DisplayName is set only after a successful join.
	DisplayName string

	// RoomID references the at most one room this session belongs to. Empty
	// until a create or join succeeds, cleared again by leave.
	RoomID string
}

// Name returns the display name to attribute messages to, falling back to
// "Anonymous" for sessions that never joined with a username.
func (s *Session) Name() string {
	if s.DisplayName == "" {
		return anonymousName
	}
	return s.DisplayName
}
