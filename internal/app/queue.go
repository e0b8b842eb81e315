package app

import (
	"sync"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
)

// EventQueue is the FIFO shared by the listener (Push) and the
// reconciliation loop (Drain).
type EventQueue struct {
	mu     sync.Mutex
	events []core.Event
}

func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

func (q *EventQueue) Push(ev core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
}

// Drain returns every queued event in arrival order and empties the queue.
func (q *EventQueue) Drain() []core.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
