package app

import (
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
	"github.com/caph1993/caph1993-virtualSink/internal/modargs"
)

const monitorSuffix = ".monitor"

// MonitorName is the name of the source mirroring everything played into sink.
func MonitorName(sink string) string {
	return sink + monitorSuffix
}

// MonitorSourceIndex resolves the index of sink's monitor source.
// ok is false when no such source exists.
func MonitorSourceIndex(sources []domain.Source, sink string) (index uint32, ok bool) {
	name := MonitorName(sink)
	for _, src := range sources {
		if src.Name == name {
			return src.Index, true
		}
	}
	return 0, false
}

type indexedModule struct {
	args   modargs.Args
	module domain.Module
}

// Index is a name-keyed view over one module listing.
// Module ids inside it are only good for destroy calls.
type Index struct {
	modules []domain.Module
}

func NewIndex(modules []domain.Module) *Index {
	return &Index{modules: modules}
}

func (ix *Index) items(kind string) []indexedModule {
	out := make([]indexedModule, 0)
	for _, m := range ix.modules {
		if m.Kind == kind {
			out = append(out, indexedModule{args: modargs.Parse(m.Args), module: m})
		}
	}
	return out
}

// SinksByName indexes null sinks by sink_name.
func (ix *Index) SinksByName() map[string]domain.Module {
	out := make(map[string]domain.Module)
	for _, it := range ix.items(domain.KindNullSink) {
		out[it.args.Get("sink_name")] = it.module
	}
	return out
}

// SinkModules lists every null sink module named name, duplicates included.
func (ix *Index) SinkModules(name string) []domain.Module {
	out := make([]domain.Module, 0, 1)
	for _, it := range ix.items(domain.KindNullSink) {
		if it.args.Get("sink_name") == name {
			out = append(out, it.module)
		}
	}
	return out
}

// RoutesByPair indexes loopbacks by their (source, sink) arguments.
func (ix *Index) RoutesByPair() map[domain.RoutePair]domain.Module {
	out := make(map[domain.RoutePair]domain.Module)
	for _, it := range ix.items(domain.KindLoopback) {
		pair := domain.RoutePair{Source: it.args.Get("source"), Sink: it.args.Get("sink")}
		out[pair] = it.module
	}
	return out
}

// RoutesInto lists every loopback whose target is sink.
func (ix *Index) RoutesInto(sink string) map[string]domain.Module {
	out := make(map[string]domain.Module)
	for pair, m := range ix.RoutesByPair() {
		if pair.Sink == sink {
			out[pair.Source] = m
		}
	}
	return out
}

// VirtualSourcesByName indexes null sources by source_name.
func (ix *Index) VirtualSourcesByName() map[string]domain.Module {
	out := make(map[string]domain.Module)
	for _, it := range ix.items(domain.KindNullSource) {
		out[it.args.Get("source_name")] = it.module
	}
	return out
}
