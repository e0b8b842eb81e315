package domain

import "sort"

// NameSet is a set of source or application names.
type NameSet map[string]struct{}

func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Minus returns the sorted names in s that are not in other.
func (s NameSet) Minus(other NameSet) []string {
	out := make([]string, 0)
	for n := range s {
		if !other.Has(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (s NameSet) Sorted() []string {
	return s.Minus(nil)
}

// Snapshot is the routing state of a sink derived in one pass.
type Snapshot struct {
	Sources NameSet
	Apps    NameSet
}

func NewSnapshot(sources, apps []string) Snapshot {
	return Snapshot{Sources: NewNameSet(sources...), Apps: NewNameSet(apps...)}
}

// Delta is the human-readable change between two snapshots.
type Delta struct {
	ConnectedSources    []string `json:"connected_sources"`
	DisconnectedSources []string `json:"disconnected_sources"`
	ConnectedApps       []string `json:"connected_apps"`
	DisconnectedApps    []string `json:"disconnected_apps"`
}

func (d Delta) Empty() bool {
	return len(d.ConnectedSources) == 0 &&
		len(d.DisconnectedSources) == 0 &&
		len(d.ConnectedApps) == 0 &&
		len(d.DisconnectedApps) == 0
}

func Diff(prev, next Snapshot) Delta {
	return Delta{
		ConnectedSources:    next.Sources.Minus(prev.Sources),
		DisconnectedSources: prev.Sources.Minus(next.Sources),
		ConnectedApps:       next.Apps.Minus(prev.Apps),
		DisconnectedApps:    prev.Apps.Minus(next.Apps),
	}
}
