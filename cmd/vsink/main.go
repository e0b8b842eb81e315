package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/caph1993/caph1993-virtualSink/internal/adapters/feed"
	router "github.com/caph1993/caph1993-virtualSink/internal/adapters/http"
	"github.com/caph1993/caph1993-virtualSink/internal/adapters/pulse"
	"github.com/caph1993/caph1993-virtualSink/internal/app"
	"github.com/caph1993/caph1993-virtualSink/internal/app/orch"
	"github.com/caph1993/caph1993-virtualSink/internal/config"
	"github.com/caph1993/caph1993-virtualSink/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vsink",
		Short: "Route every audio source into one virtual sink",
		Long: `vsink creates a null sink and loops every audio source into it, so
recording apps can capture all inputs at once through the sink monitor.
New sources are routed as they appear. On exit the sink is removed unless
an app is still recording from it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				log.Error().Err(err).Msg("failed to load config")
				return err
			}
			if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(lvl)
			} else {
				log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := pulse.Dial(cfg.Server, cfg.ClientName)
	if err != nil {
		log.Error().Err(err).Msg("failed to dial audio server")
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := feed.NewHub()
	defer hub.Close()

	rt := app.NewRouter(client, cfg.MeterName)
	o := &orch.Orchestrator{
		Router:       rt,
		Events:       client,
		Report:       orch.NewReporter(os.Stdout),
		Metrics:      metrics.NewMetrics(reg),
		Limiter:      rate.NewLimiter(rate.Limit(cfg.MaxPassRate), 1),
		Observers:    []orch.Observer{hub},
		SinkName:     cfg.SinkName,
		PollInterval: cfg.PollInterval,
		StopTimeout:  cfg.StopTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.Run(gctx)
	})

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router.SetupRouter(gctx, cfg, o, rt, hub, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("status API started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("server error")
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server forced to shutdown")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("exited with error")
		return err
	}
	log.Info().Msg("exited gracefully")
	return nil
}
