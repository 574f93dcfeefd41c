// Package server implements the session and broadcast core of the chat
// service: the room registry, the hub event loop that owns all session state,
// and the WebSocket transport around them.
//
// The implementation is organized into specialized files for configuration,
// the hub, sessions, the room registry, connections, routing, and HTTP
// handlers to keep the codebase maintainable and testable.
package server
