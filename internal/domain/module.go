// Package domain contains the graph entities without logic, just meta-data
package domain

// ModuleID is the server-assigned handle of a loaded module. It is only
// valid until the module is unloaded and is never used as an identity.
type ModuleID uint32

const (
	KindNullSink   = "module-null-sink"
	KindLoopback   = "module-loopback"
	KindNullSource = "module-null-source"
)

// Module is one entry of the server's module listing.
type Module struct {
	ID   ModuleID
	Kind string
	Args string
}

type Source struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
}

// Consumer is a stream reading from a source (a "source output").
type Consumer struct {
	Index       uint32 `json:"index"`
	Name        string `json:"name"`
	SourceIndex uint32 `json:"source_index"`
}

// RoutePair identifies a loopback route by its endpoints.
type RoutePair struct {
	Source string
	Sink   string
}
