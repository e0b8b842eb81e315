// Package memgraph is an in-memory audio server implementing core.Graph and
// core.Subscriber. It mimics the parts of the PulseAudio module graph the
// router depends on: null sinks expose a monitor source, loopbacks die with
// their endpoints and every mutation emits a change event.
package memgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
	"github.com/caph1993/caph1993-virtualSink/internal/modargs"
)

const (
	OpModules   = "modules"
	OpSources   = "sources"
	OpConsumers = "consumers"
	OpLoad      = "load"
	OpUnload    = "unload"
	OpSubscribe = "subscribe"
)

type Server struct {
	mu sync.Mutex

	nextModule   uint32
	nextSource   uint32
	nextConsumer uint32

	modules   []domain.Module
	sources   []domain.Source
	consumers []domain.Consumer
	// monitors maps a null sink module to its monitor source name.
	monitors map[domain.ModuleID]string

	streams []*core.ChanStream
	fail    map[string][]error
	loads   map[string]int
	closed  bool
}

func New() *Server {
	return &Server{
		nextModule: 1,
		monitors:   make(map[domain.ModuleID]string),
		fail:       make(map[string][]error),
		loads:      make(map[string]int),
	}
}

// FailNext makes the next call of op return err.
func (s *Server) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = append(s.fail[op], err)
}

// Loads counts the modules of kind ever loaded.
func (s *Server) Loads(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[kind]
}

func (s *Server) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("%s: %w", op, core.ErrServerUnavailable)
	}
	if errs := s.fail[op]; len(errs) > 0 {
		s.fail[op] = errs[1:]
		return fmt.Errorf("%s: %w", op, errs[0])
	}
	return nil
}

func (s *Server) emit(index uint32) {
	for _, st := range s.streams {
		st.Publish(core.Event{Index: index})
	}
}

// AddSource registers a device source and returns its index.
func (s *Server) AddSource(name string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.addSourceLocked(name)
	s.emit(idx)
	return idx
}

func (s *Server) addSourceLocked(name string) uint32 {
	idx := s.nextSource
	s.nextSource++
	s.sources = append(s.sources, domain.Source{Index: idx, Name: name})
	return idx
}

// RemoveSource unplugs a source; loopbacks reading it and consumers of it go away.
func (s *Server) RemoveSource(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSourceLocked(name)
}

func (s *Server) removeSourceLocked(name string) {
	kept := s.sources[:0]
	var removed []uint32
	for _, src := range s.sources {
		if src.Name == name {
			removed = append(removed, src.Index)
			continue
		}
		kept = append(kept, src)
	}
	s.sources = kept
	for _, idx := range removed {
		s.dropConsumersLocked(idx)
		s.emit(idx)
	}
	s.unloadWhereLocked(func(m domain.Module) bool {
		return m.Kind == domain.KindLoopback && modargs.Parse(m.Args).Get("source") == name
	})
}

// AddConsumer attaches a recording stream named name to source.
func (s *Server) AddConsumer(name, source string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.Name == source {
			idx := s.nextConsumer
			s.nextConsumer++
			s.consumers = append(s.consumers, domain.Consumer{Index: idx, Name: name, SourceIndex: src.Index})
			s.emit(idx)
			return idx, nil
		}
	}
	return 0, fmt.Errorf("no source %q: %w", source, core.ErrCommandRejected)
}

func (s *Server) RemoveConsumer(index uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.consumers[:0]
	for _, c := range s.consumers {
		if c.Index != index {
			kept = append(kept, c)
		}
	}
	s.consumers = kept
	s.emit(index)
}

func (s *Server) dropConsumersLocked(sourceIndex uint32) {
	kept := s.consumers[:0]
	for _, c := range s.consumers {
		if c.SourceIndex != sourceIndex {
			kept = append(kept, c)
		}
	}
	s.consumers = kept
}

func (s *Server) Modules(ctx context.Context) ([]domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpModules); err != nil {
		return nil, err
	}
	return append([]domain.Module(nil), s.modules...), nil
}

func (s *Server) Sources(ctx context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpSources); err != nil {
		return nil, err
	}
	return append([]domain.Source(nil), s.sources...), nil
}

func (s *Server) Consumers(ctx context.Context) ([]domain.Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpConsumers); err != nil {
		return nil, err
	}
	return append([]domain.Consumer(nil), s.consumers...), nil
}

func (s *Server) CreateSink(ctx context.Context, name, description string) (domain.ModuleID, error) {
	return s.LoadModule(ctx, domain.KindNullSink, modargs.SinkArgs(name, description))
}

func (s *Server) CreateRoute(ctx context.Context, source, sink string) (domain.ModuleID, error) {
	return s.LoadModule(ctx, domain.KindLoopback, modargs.RouteArgs(source, sink))
}

// LoadModule loads any module kind. Null sinks and sources get their
// endpoint; loopbacks require both endpoints to exist.
func (s *Server) LoadModule(ctx context.Context, kind, args string) (domain.ModuleID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpLoad); err != nil {
		return 0, err
	}
	a := modargs.Parse(args)
	id := domain.ModuleID(s.nextModule)
	switch kind {
	case domain.KindNullSink:
		monitor := a.Get("sink_name") + ".monitor"
		s.addSourceLocked(monitor)
		s.monitors[id] = monitor
	case domain.KindNullSource:
		s.addSourceLocked(a.Get("source_name"))
	case domain.KindLoopback:
		if !s.hasSourceLocked(a.Get("source")) || !s.hasSinkLocked(a.Get("sink")) {
			return 0, fmt.Errorf("load %s %q: %w", kind, args, core.ErrCommandRejected)
		}
	}
	s.nextModule++
	s.modules = append(s.modules, domain.Module{ID: id, Kind: kind, Args: args})
	s.loads[kind]++
	s.emit(uint32(id))
	return id, nil
}

func (s *Server) hasSourceLocked(name string) bool {
	for _, src := range s.sources {
		if src.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) hasSinkLocked(name string) bool {
	for _, m := range s.modules {
		if m.Kind == domain.KindNullSink && modargs.Parse(m.Args).Get("sink_name") == name {
			return true
		}
	}
	return false
}

func (s *Server) DestroyModule(ctx context.Context, id domain.ModuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpUnload); err != nil {
		return err
	}
	for _, m := range s.modules {
		if m.ID == id {
			s.unloadLocked(m)
			return nil
		}
	}
	return fmt.Errorf("unload module %d: %w", id, core.ErrCommandRejected)
}

func (s *Server) unloadLocked(m domain.Module) {
	kept := s.modules[:0]
	for _, other := range s.modules {
		if other.ID != m.ID {
			kept = append(kept, other)
		}
	}
	s.modules = kept
	s.emit(uint32(m.ID))

	switch m.Kind {
	case domain.KindNullSink:
		sink := modargs.Parse(m.Args).Get("sink_name")
		if monitor, ok := s.monitors[m.ID]; ok {
			delete(s.monitors, m.ID)
			s.removeSourceLocked(monitor)
		}
		s.unloadWhereLocked(func(l domain.Module) bool {
			return l.Kind == domain.KindLoopback && modargs.Parse(l.Args).Get("sink") == sink
		})
	case domain.KindNullSource:
		s.removeSourceLocked(modargs.Parse(m.Args).Get("source_name"))
	}
}

func (s *Server) unloadWhereLocked(match func(domain.Module) bool) {
	var doomed []domain.Module
	for _, m := range s.modules {
		if match(m) {
			doomed = append(doomed, m)
		}
	}
	for _, m := range doomed {
		s.unloadLocked(m)
	}
}

// Subscribe returns a stream receiving one event per mutation.
func (s *Server) Subscribe(ctx context.Context) (core.EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpSubscribe); err != nil {
		return nil, err
	}
	var st *core.ChanStream
	st = core.NewChanStream(64, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, other := range s.streams {
			if other == st {
				s.streams = append(s.streams[:i], s.streams[i+1:]...)
				break
			}
		}
		return nil
	})
	s.streams = append(s.streams, st)
	return st, nil
}

// Streams counts the open event streams.
func (s *Server) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// DropStreams closes every event stream, as a server restart would.
func (s *Server) DropStreams() {
	s.mu.Lock()
	streams := s.streams
	s.streams = nil
	s.mu.Unlock()
	for _, st := range streams {
		_ = st.Close()
	}
}

// Close makes every later call fail with core.ErrServerUnavailable.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen undoes Close, as if the server came back.
func (s *Server) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

var (
	_ core.Graph      = (*Server)(nil)
	_ core.Subscriber = (*Server)(nil)
)
