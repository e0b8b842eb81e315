package app

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
)

// Listener pumps server change events into an EventQueue from its own
// goroutine and signals the loop that a rescan is due.
type Listener struct {
	stream core.EventStream
	queue  *EventQueue
	notify chan struct{}
	done   chan struct{}
	stop   atomic.Bool

	logger zerolog.Logger
}

func NewListener(stream core.EventStream, queue *EventQueue) *Listener {
	return &Listener{
		stream: stream,
		queue:  queue,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: log.With().Str("module", "app.listener").Logger(),
	}
}

func (l *Listener) Start() {
	go l.loop()
}

// Notify fires at least once after any number of pushes.
func (l *Listener) Notify() <-chan struct{} { return l.notify }

// Done is closed once the background goroutine has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) loop() {
	defer close(l.done)
	l.logger.Info().Msg("listening for graph changes")
	for {
		ev, err := l.stream.Recv()
		if err != nil {
			if !errors.Is(err, core.ErrStreamClosed) || !l.stop.Load() {
				l.logger.Error().Err(err).Msg("event stream ended")
			}
			return
		}
		if !ev.Synthetic {
			l.queue.Push(ev)
			select {
			case l.notify <- struct{}{}:
			default:
			}
		}
		if l.stop.Load() {
			l.logger.Info().Msg("listener stopped")
			return
		}
	}
}

// Stop asks the goroutine to exit at its next receive, wakes it and waits
// for it until ctx expires. The stream is closed in every case.
func (l *Listener) Stop(ctx context.Context) error {
	l.stop.Store(true)
	l.stream.Wake()
	var err error
	select {
	case <-l.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cerr := l.stream.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
