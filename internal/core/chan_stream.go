package core

import "sync"

// ChanStream is an EventStream fed by a transport callback.
type ChanStream struct {
	events  chan Event
	closed  chan struct{}
	once    sync.Once
	onClose func() error
}

func NewChanStream(buffer int, onClose func() error) *ChanStream {
	return &ChanStream{
		events:  make(chan Event, buffer),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// Publish never blocks. When the buffer is full the event is dropped:
// the buffered ones already guarantee a rescan.
func (s *ChanStream) Publish(ev Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *ChanStream) Recv() (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return Event{}, ErrStreamClosed
	}
}

func (s *ChanStream) Wake() {
	s.Publish(Event{Synthetic: true})
}

func (s *ChanStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if s.onClose != nil {
			err = s.onClose()
		}
	})
	return err
}
