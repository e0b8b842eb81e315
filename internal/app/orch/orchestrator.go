package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/caph1993/caph1993-virtualSink/internal/app"
	"github.com/caph1993/caph1993-virtualSink/internal/core"
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
	"github.com/caph1993/caph1993-virtualSink/internal/metrics"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStopTimeout  = 2 * time.Second
)

// Observer is told about every completed pass.
type Observer interface {
	OnPass(sink string, snap domain.Snapshot, delta domain.Delta)
}

// Orchestrator is the reconciliation loop: it keeps every source routed into
// the sink named SinkName until ctx ends, then removes the sink if unused.
type Orchestrator struct {
	Router    *app.Router
	Events    core.Subscriber
	Report    *Reporter
	Metrics   *metrics.Metrics
	Limiter   *rate.Limiter
	Observers []Observer

	SinkName     string
	PollInterval time.Duration
	StopTimeout  time.Duration

	state   atomic.Int32
	mu      sync.RWMutex
	current domain.Snapshot
	queue   *app.EventQueue
	logger  zerolog.Logger
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.logger.Info().Str("state", s.String()).Msg("state changed")
}

// Snapshot returns the routing state found by the last pass.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

func (o *Orchestrator) Sink() string { return o.SinkName }

func (o *Orchestrator) defaults() {
	o.logger = log.With().Str("module", "orch").Str("sink", o.SinkName).Logger()
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	o.queue = app.NewEventQueue()
}

// Run blocks until ctx is done. Only a failure to create the sink at
// startup is returned; later failures are reported and retried.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.defaults()
	o.setState(StateStarting)
	defer func() {
		if err := o.Router.Graph.Close(); err != nil {
			o.logger.Error().Err(err).Msg("close graph")
		}
		o.setState(StateStopped)
	}()

	if _, err := o.Router.EnsureSink(ctx, o.SinkName); err != nil {
		o.Report.Failure("create sink", err)
		return err
	}
	listener := o.startListener(ctx)

	o.Report.Banner(o.SinkName)
	o.refresh(ctx)

	o.setState(StateRunning)
	listener = o.loop(ctx, listener)

	o.setState(StateDraining)
	o.teardown(listener)
	return nil
}

func (o *Orchestrator) startListener(ctx context.Context) *app.Listener {
	if o.Events == nil {
		o.logger.Warn().Msg("no event source, polling only")
		return nil
	}
	stream, err := o.Events.Subscribe(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("subscribe failed, polling only")
		return nil
	}
	l := app.NewListener(stream, o.queue)
	l.Start()
	return l
}

// loop runs passes until ctx is done and returns the listener then active.
// A listener whose stream ended is replaced on the next pass.
func (o *Orchestrator) loop(ctx context.Context, listener *app.Listener) *app.Listener {
	timer := time.NewTimer(o.PollInterval)
	defer timer.Stop()

	for {
		var notify, ended <-chan struct{}
		if listener != nil {
			notify = listener.Notify()
			ended = listener.Done()
		}
		select {
		case <-ctx.Done():
			return listener
		case <-notify:
		case <-ended:
			o.logger.Warn().Msg("event stream lost, resubscribing")
			o.stopListener(listener)
			listener = nil
		case <-timer.C:
		}
		if listener == nil && o.Events != nil {
			listener = o.startListener(ctx)
		}
		if o.Limiter != nil {
			if err := o.Limiter.Wait(ctx); err != nil {
				return listener
			}
		}
		events := o.queue.Drain()
		o.Metrics.EventsReceived.Add(float64(len(events)))
		o.refresh(ctx)
		timer.Reset(o.PollInterval)
	}
}

// refresh is one reconciliation pass.
func (o *Orchestrator) refresh(ctx context.Context) {
	start := time.Now()
	defer func() {
		o.Metrics.Passes.Inc()
		o.Metrics.PassDuration.Observe(time.Since(start).Seconds())
	}()

	if _, err := o.Router.EnsureSink(ctx, o.SinkName); err != nil {
		o.fail(ctx, "create sink", err)
		return
	}
	res, err := o.Router.ConnectAll(ctx, o.SinkName)
	if err != nil {
		o.fail(ctx, "connect", err)
	}
	for _, f := range res.Failures {
		o.fail(ctx, "connect "+f.Pair.Source, f.Err)
	}
	o.Metrics.RoutesCreated.Add(float64(len(res.Created)))

	next, err := o.Router.Snapshot(ctx, o.SinkName)
	if err != nil {
		o.fail(ctx, "snapshot", err)
		return
	}
	o.mu.Lock()
	prev := o.current
	o.current = next
	o.mu.Unlock()

	delta := domain.Diff(prev, next)
	o.Report.Delta(delta)
	o.Metrics.RoutedSources.Set(float64(len(next.Sources)))
	o.Metrics.Consumers.Set(float64(len(next.Apps)))
	for _, obs := range o.Observers {
		obs.OnPass(o.SinkName, next, delta)
	}
}

func (o *Orchestrator) fail(ctx context.Context, op string, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	o.logger.Warn().Err(err).Str("op", op).Msg("operation failed, retrying next pass")
	o.Metrics.Errors.WithLabelValues(opLabel(err)).Inc()
	o.Report.Failure(op, err)
}

func opLabel(err error) string {
	switch {
	case errors.Is(err, core.ErrServerUnavailable):
		return "server_unavailable"
	case errors.Is(err, core.ErrCommandRejected):
		return "command_rejected"
	}
	return "other"
}

func (o *Orchestrator) teardown(listener *app.Listener) {
	ctx, cancel := context.WithTimeout(context.Background(), o.StopTimeout)
	defer cancel()

	o.Report.Ending()
	if listener != nil {
		if err := listener.Stop(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("listener stop")
		}
	}
	blockers, err := o.Router.RemoveSinkIfUnused(ctx, o.SinkName)
	if err != nil {
		o.logger.Error().Err(err).Msg("teardown failed")
	}
	o.Report.Teardown(app.ConsumerNames(blockers), err)
}

func (o *Orchestrator) stopListener(listener *app.Listener) {
	ctx, cancel := context.WithTimeout(context.Background(), o.StopTimeout)
	defer cancel()
	if err := listener.Stop(ctx); err != nil && !errors.Is(err, core.ErrStreamClosed) {
		o.logger.Warn().Err(err).Msg("listener stop")
	}
}
