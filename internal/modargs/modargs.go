// Package modargs reads and writes module argument strings: whitespace
// separated key=value tokens.
package modargs

import "strings"

// Args maps argument keys to values. Absent keys read as "".
type Args map[string]string

// Parse never fails. Tokens without '=' or with an empty key are skipped,
// the first '=' splits key from value and a repeated key keeps its last value.
func Parse(raw string) Args {
	args := make(Args)
	for _, tok := range strings.Fields(raw) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			continue
		}
		args[key] = value
	}
	return args
}

func (a Args) Get(key string) string {
	return a[key]
}

type Pair struct {
	Key   string
	Value string
}

func KV(key, value string) Pair {
	return Pair{Key: key, Value: value}
}

// Format renders pairs in the given order.
func Format(pairs ...Pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.Key+"="+p.Value)
	}
	return strings.Join(parts, " ")
}

// SinkArgs is the argument string of a null sink.
func SinkArgs(name, description string) string {
	return Format(
		KV("sink_name", name),
		KV("sink_properties", "device.description="+description),
	)
}

// RouteArgs is the argument string of a loopback from source into sink.
func RouteArgs(source, sink string) string {
	return Format(KV("source", source), KV("sink", sink))
}
