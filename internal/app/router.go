package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
)

// DefaultMeterName is the stream pavucontrol opens to draw level bars.
const DefaultMeterName = "Peak detect"

// RouteFailure is a route the connect pass could not create.
type RouteFailure struct {
	Pair domain.RoutePair
	Err  error
}

type ConnectResult struct {
	Created  []domain.RoutePair
	Failures []RouteFailure
}

// Router owns every mutation of the graph. It keeps no state between calls:
// each operation re-indexes the live graph before acting.
type Router struct {
	Graph core.Graph
	// MeterName is a consumer that never counts as usage of a sink.
	MeterName string

	logger zerolog.Logger
}

func NewRouter(g core.Graph, meterName string) *Router {
	return &Router{
		Graph:     g,
		MeterName: meterName,
		logger:    log.With().Str("module", "app.router").Logger(),
	}
}

func (r *Router) index(ctx context.Context) (*Index, error) {
	mods, err := r.Graph.Modules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return NewIndex(mods), nil
}

// EnsureSink returns the module of the sink named name, creating it if needed.
func (r *Router) EnsureSink(ctx context.Context, name string) (domain.ModuleID, error) {
	ix, err := r.index(ctx)
	if err != nil {
		return 0, err
	}
	if m, ok := ix.SinksByName()[name]; ok {
		return m.ID, nil
	}
	id, err := r.Graph.CreateSink(ctx, name, name)
	if err != nil {
		return 0, fmt.Errorf("create sink %q: %w", name, err)
	}
	r.logger.Info().Str("sink", name).Uint32("module_id", uint32(id)).Msg("sink created")
	return id, nil
}

// EnsureRoute returns the loopback from source into sink, creating it if needed.
func (r *Router) EnsureRoute(ctx context.Context, source, sink string) (domain.ModuleID, error) {
	ix, err := r.index(ctx)
	if err != nil {
		return 0, err
	}
	if m, ok := ix.RoutesByPair()[domain.RoutePair{Source: source, Sink: sink}]; ok {
		return m.ID, nil
	}
	return r.createRoute(ctx, source, sink)
}

func (r *Router) createRoute(ctx context.Context, source, sink string) (domain.ModuleID, error) {
	id, err := r.Graph.CreateRoute(ctx, source, sink)
	if err != nil {
		return 0, fmt.Errorf("create route %s -> %s: %w", source, sink, err)
	}
	r.logger.Debug().Str("source", source).Str("sink", sink).Uint32("module_id", uint32(id)).Msg("route created")
	return id, nil
}

// ConnectAll routes every source except sink's own monitor into sink.
// One listing is taken per pass; failed routes are reported in the result
// and retried by the next pass.
func (r *Router) ConnectAll(ctx context.Context, sink string) (ConnectResult, error) {
	var res ConnectResult
	sources, err := r.Graph.Sources(ctx)
	if err != nil {
		return res, fmt.Errorf("list sources: %w", err)
	}
	ix, err := r.index(ctx)
	if err != nil {
		return res, err
	}
	routes := ix.RoutesByPair()
	monitor := MonitorName(sink)
	for _, src := range sources {
		if src.Name == monitor {
			continue
		}
		pair := domain.RoutePair{Source: src.Name, Sink: sink}
		if _, ok := routes[pair]; ok {
			continue
		}
		id, err := r.createRoute(ctx, src.Name, sink)
		if err != nil {
			res.Failures = append(res.Failures, RouteFailure{Pair: pair, Err: err})
			continue
		}
		routes[pair] = domain.Module{ID: id, Kind: domain.KindLoopback}
		res.Created = append(res.Created, pair)
	}
	return res, nil
}

// DisconnectRoute removes the loopback from source into sink if there is one.
func (r *Router) DisconnectRoute(ctx context.Context, source, sink string) error {
	ix, err := r.index(ctx)
	if err != nil {
		return err
	}
	m, ok := ix.RoutesByPair()[domain.RoutePair{Source: source, Sink: sink}]
	if !ok {
		return nil
	}
	if err := r.Graph.DestroyModule(ctx, m.ID); err != nil {
		return fmt.Errorf("destroy route %s -> %s: %w", source, sink, err)
	}
	return nil
}

// DisconnectAll removes every loopback targeting sink. It keeps going past
// individual failures and returns them joined.
func (r *Router) DisconnectAll(ctx context.Context, sink string) error {
	ix, err := r.index(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for source, m := range ix.RoutesInto(sink) {
		if err := r.Graph.DestroyModule(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("destroy route %s -> %s: %w", source, sink, err))
			continue
		}
		r.logger.Debug().Str("source", source).Str("sink", sink).Msg("route destroyed")
	}
	return errors.Join(errs...)
}

// RemoveSink disconnects and unloads the sink named name without checking
// for consumers. Use RemoveSinkIfUnused.
func (r *Router) RemoveSink(ctx context.Context, name string) error {
	if err := r.DisconnectAll(ctx, name); err != nil {
		return err
	}
	ix, err := r.index(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range ix.SinkModules(name) {
		if err := r.Graph.DestroyModule(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("destroy sink %q: %w", name, err))
		}
	}
	if len(errs) == 0 {
		r.logger.Info().Str("sink", name).Msg("sink removed")
	}
	return errors.Join(errs...)
}

// RemoveSinkIfUnused removes the sink and its routes only when nothing reads
// its monitor. Otherwise it changes nothing and returns the blocking consumers.
func (r *Router) RemoveSinkIfUnused(ctx context.Context, name string) ([]domain.Consumer, error) {
	blockers, err := r.ConsumersOf(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(blockers) > 0 {
		r.logger.Info().Str("sink", name).Int("consumers", len(blockers)).Msg("sink busy, left in place")
		return blockers, nil
	}
	return nil, r.RemoveSink(ctx, name)
}

// ConsumersOf lists the streams reading the monitor of sink name, minus the
// level meter. A sink without monitor has no consumers.
func (r *Router) ConsumersOf(ctx context.Context, name string) ([]domain.Consumer, error) {
	sources, err := r.Graph.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	idx, ok := MonitorSourceIndex(sources, name)
	if !ok {
		return nil, nil
	}
	all, err := r.Graph.Consumers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	out := make([]domain.Consumer, 0)
	for _, c := range all {
		if c.SourceIndex != idx || c.Name == r.MeterName {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// RoutedSources lists, sorted, the sources looped back into sink.
func (r *Router) RoutedSources(ctx context.Context, sink string) ([]string, error) {
	ix, err := r.index(ctx)
	if err != nil {
		return nil, err
	}
	into := ix.RoutesInto(sink)
	out := make([]string, 0, len(into))
	for source := range into {
		out = append(out, source)
	}
	sort.Strings(out)
	return out, nil
}

// VirtualSources lists, sorted, the names of null sources present in the graph.
func (r *Router) VirtualSources(ctx context.Context) ([]string, error) {
	ix, err := r.index(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for name := range ix.VirtualSourcesByName() {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Snapshot derives the current routing state of sink from the live graph.
func (r *Router) Snapshot(ctx context.Context, sink string) (domain.Snapshot, error) {
	sources, err := r.RoutedSources(ctx, sink)
	if err != nil {
		return domain.Snapshot{}, err
	}
	consumers, err := r.ConsumersOf(ctx, sink)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.NewSnapshot(sources, ConsumerNames(consumers)), nil
}

// ConsumerNames returns the display names of cs in order.
func ConsumerNames(cs []domain.Consumer) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}
