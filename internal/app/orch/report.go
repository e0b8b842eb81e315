package orch

import (
	"fmt"
	"io"

	"github.com/caph1993/caph1993-virtualSink/internal/domain"
)

// Reporter writes the operator-facing status lines.
type Reporter struct {
	out    io.Writer
	prefix string
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out, prefix: "  "}
}

func (r *Reporter) println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

func (r *Reporter) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

func (r *Reporter) Banner(sink string) {
	r.printf("You may now use [%s] as audio source. Quit with ctrl-C.\n", sink)
	r.println()
	r.println("Connections:")
}

func (r *Reporter) Delta(d domain.Delta) {
	for _, s := range d.ConnectedSources {
		r.printf("%sConnected source    %s\n", r.prefix, s)
	}
	for _, s := range d.DisconnectedSources {
		r.printf("%sDisconnected source %s\n", r.prefix, s)
	}
	for _, a := range d.ConnectedApps {
		r.printf("%sConnected app       %s\n", r.prefix, a)
	}
	for _, a := range d.DisconnectedApps {
		r.printf("%sDisconnected app    %s\n", r.prefix, a)
	}
}

func (r *Reporter) Failure(op string, err error) {
	r.printf("%sError %s: %v\n", r.prefix, op, err)
}

func (r *Reporter) Ending() {
	r.println("...ending...")
}

// Teardown reports the outcome of the safe removal.
func (r *Reporter) Teardown(blockers []string, err error) {
	switch {
	case err != nil:
		r.Failure("teardown", err)
		r.println()
		r.println("Connection left alive")
	case len(blockers) > 0:
		r.println("Some apps are still using this connection:")
		r.println()
		for _, name := range blockers {
			r.printf("%s%s\n", r.prefix, name)
		}
		r.println()
		r.println("Connection left alive")
	default:
		r.println("Connection killed")
		r.println()
		r.println("Finished")
	}
}
