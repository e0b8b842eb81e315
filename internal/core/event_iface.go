package core

// Event is a change notification. Its content is informational only;
// any event means the graph may have changed.
type Event struct {
	Code  uint32
	Index uint32
	// Synthetic marks wake-ups injected locally, not sent by the server.
	Synthetic bool
}

// EventStream is a blocking source of change events.
type EventStream interface {
	// Recv blocks until an event arrives or the stream is closed.
	Recv() (Event, error)
	// Wake unblocks a pending Recv with a synthetic event.
	Wake()
	Close() error
}
