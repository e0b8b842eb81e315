package core

import (
	"context"
	"errors"

	"github.com/caph1993/caph1993-virtualSink/internal/domain"
)

var (
	// ErrServerUnavailable means the audio server could not be reached.
	ErrServerUnavailable = errors.New("audio server unavailable")
	// ErrCommandRejected means the server refused a specific command.
	ErrCommandRejected = errors.New("command rejected")
	ErrStreamClosed    = errors.New("event stream closed")
)

// Graph is the query/command surface of the audio server.
// Implementations hold no graph state; every call reads the live server.
type Graph interface {
	Modules(ctx context.Context) ([]domain.Module, error)
	Sources(ctx context.Context) ([]domain.Source, error)
	Consumers(ctx context.Context) ([]domain.Consumer, error)

	// CreateSink loads a null sink named name with the given description.
	CreateSink(ctx context.Context, name, description string) (domain.ModuleID, error)
	// CreateRoute loads a loopback copying source into sink.
	CreateRoute(ctx context.Context, source, sink string) (domain.ModuleID, error)
	DestroyModule(ctx context.Context, id domain.ModuleID) error

	Close() error
}

// Subscriber opens the server's change notification stream.
type Subscriber interface {
	Subscribe(ctx context.Context) (EventStream, error)
}
