package client

// MessageDeduplicator suppresses duplicate rendering of chat messages that
// arrive more than once, such as replays after a reconnect. The seen set is
// unbounded for the client's lifetime; a session's message volume is small
// and the set dies with the client.
//
// It is not safe for concurrent use: the connection's single dispatch
// goroutine is its sole caller.
type MessageDeduplicator struct {
	seen map[string]struct{}
}

// NewMessageDeduplicator creates an empty deduplicator.
func NewMessageDeduplicator() *MessageDeduplicator {
	return &MessageDeduplicator{
		seen: make(map[string]struct{}),
	}
}

// ShouldAccept reports whether a message with the given id has not been seen
// before, recording it as seen. Messages without an id (synthetic local
// echoes) are always accepted and never recorded. Call exactly once per
// inbound chat event, before handing the message to the consumer.
func (d *MessageDeduplicator) ShouldAccept(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}
