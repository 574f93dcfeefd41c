// Package server implements the in-memory room registry that owns room
// lifecycle and membership for the chat service.
package server

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrRoomNotFound is returned when an operation references a room id that was
// never created.
var ErrRoomNotFound = errors.New("room not found")

// roomCodeLength is the fixed length of generated room codes.
const roomCodeLength = 6

// RoomRegistry maps room codes to their member sessions. It is not safe for
// concurrent use: the hub's event loop is its sole owner, so every mutation
// happens from that single goroutine.
type RoomRegistry struct {
	rooms map[string]map[string]struct{} // room code -> set of member session ids
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]map[string]struct{}),
	}
}

// NewRoomCode produces a fixed-length, uppercase, alphanumeric room code from
// a cryptographically random UUID. Codes are not checked against existing
// rooms; the entropy makes collisions rare, not impossible, and that tradeoff
// is accepted rather than hidden behind a uniqueness probe.
func NewRoomCode() string {
	return strings.ToUpper(uuid.NewString()[:roomCodeLength])
}

// CreateRoom allocates a fresh room code and registers an empty room under
// it. It never blocks and never fails; there is no capacity limit. Should the
// generated code collide with a live room, the existing member set is reused.
func (r *RoomRegistry) CreateRoom() string {
	code := NewRoomCode()
	if _, ok := r.rooms[code]; !ok {
		r.rooms[code] = make(map[string]struct{})
	}
	return code
}

// RoomExists reports whether a room was created under the given code. Rooms
// are never reaped, so this stays true even after the last member leaves.
func (r *RoomRegistry) RoomExists(roomID string) bool {
	_, ok := r.rooms[roomID]
	return ok
}

// AddMember adds a session to a room's member set. Adding an existing member
// is a no-op. Returns ErrRoomNotFound if the room was never created.
func (r *RoomRegistry) AddMember(roomID, sessionID string) error {
	members, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	members[sessionID] = struct{}{}
	return nil
}

// RemoveMember removes a session from a room's member set. It is a no-op if
// the room does not exist or the session is not a member. The room record
// itself is kept even when the member set becomes empty.
func (r *RoomRegistry) RemoveMember(roomID, sessionID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, sessionID)
	}
}

// Members returns a snapshot of the session ids currently in the room. The
// snapshot keeps fanout safe against membership changes triggered while
// delivering, such as dropping a slow consumer mid-broadcast.
func (r *RoomRegistry) Members(roomID string) []string {
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}
