package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/caph1993/caph1993-virtualSink/internal/adapters/feed"
	"github.com/caph1993/caph1993-virtualSink/internal/app"
	"github.com/caph1993/caph1993-virtualSink/internal/app/orch"
	"github.com/caph1993/caph1993-virtualSink/internal/config"
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
)

// Status is the read side of the reconciliation loop.
type Status interface {
	State() orch.State
	Snapshot() domain.Snapshot
	Sink() string
}

type statusResponse struct {
	Sink    string   `json:"sink"`
	State   string   `json:"state"`
	Sources []string `json:"sources"`
	Apps    []string `json:"apps"`
}

type graphResponse struct {
	Sink           string   `json:"sink"`
	RoutedSources  []string `json:"routed_sources"`
	Consumers      []string `json:"consumers"`
	VirtualSources []string `json:"virtual_sources"`
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	status Status,
	router *app.Router,
	hub *feed.Hub,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("addr", cfg.HTTPAddr).Msg("router setup")

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": status.State().String()})
	})

	api.GET("/status", func(c *gin.Context) {
		snap := status.Snapshot()
		c.JSON(http.StatusOK, statusResponse{
			Sink:    status.Sink(),
			State:   status.State().String(),
			Sources: snap.Sources.Sorted(),
			Apps:    snap.Apps.Sorted(),
		})
	})

	// Live view straight from the server, bypassing the last snapshot.
	api.GET("/graph", func(c *gin.Context) {
		resp, err := liveGraph(c.Request.Context(), router, status.Sink())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("graph query")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	api.GET("/ws/events", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws events endpoint hit")
		hub.Serve(ctx, c.Writer, c.Request)
	})

	return r
}

func liveGraph(ctx context.Context, router *app.Router, sink string) (graphResponse, error) {
	routed, err := router.RoutedSources(ctx, sink)
	if err != nil {
		return graphResponse{}, err
	}
	consumers, err := router.ConsumersOf(ctx, sink)
	if err != nil {
		return graphResponse{}, err
	}
	virtual, err := router.VirtualSources(ctx)
	if err != nil {
		return graphResponse{}, err
	}
	return graphResponse{
		Sink:           sink,
		RoutedSources:  routed,
		Consumers:      app.ConsumerNames(consumers),
		VirtualSources: virtual,
	}, nil
}
