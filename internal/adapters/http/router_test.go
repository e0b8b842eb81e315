package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caph1993/caph1993-virtualSink/internal/adapters/feed"
	"github.com/caph1993/caph1993-virtualSink/internal/adapters/memgraph"
	"github.com/caph1993/caph1993-virtualSink/internal/app"
	"github.com/caph1993/caph1993-virtualSink/internal/app/orch"
	"github.com/caph1993/caph1993-virtualSink/internal/config"
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
	"github.com/caph1993/caph1993-virtualSink/internal/metrics"
)

type fakeStatus struct {
	state orch.State
	snap  domain.Snapshot
}

func (f fakeStatus) State() orch.State         { return f.state }
func (f fakeStatus) Snapshot() domain.Snapshot { return f.snap }
func (f fakeStatus) Sink() string              { return "X" }

func setup(t *testing.T, srv *memgraph.Server) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.Passes.Inc()
	status := fakeStatus{
		state: orch.StateRunning,
		snap:  domain.NewSnapshot([]string{"s2", "s1"}, []string{"Recorder"}),
	}
	cfg := &config.Config{Mode: "release"}
	return SetupRouter(context.Background(), cfg, status, app.NewRouter(srv, app.DefaultMeterName), feed.NewHub(), reg)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, setup(t, memgraph.New()), "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","state":"running"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	w := get(t, setup(t, memgraph.New()), "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "X", resp.Sink)
	assert.Equal(t, "running", resp.State)
	assert.Equal(t, []string{"s1", "s2"}, resp.Sources)
	assert.Equal(t, []string{"Recorder"}, resp.Apps)
}

func TestGraph(t *testing.T) {
	ctx := context.Background()
	srv := memgraph.New()
	srv.AddSource("s1")
	r := app.NewRouter(srv, app.DefaultMeterName)
	_, err := r.EnsureSink(ctx, "X")
	require.NoError(t, err)
	_, err = r.ConnectAll(ctx, "X")
	require.NoError(t, err)
	_, err = srv.LoadModule(ctx, domain.KindNullSource, "source_name=mic2")
	require.NoError(t, err)

	w := get(t, setup(t, srv), "/api/graph")
	require.Equal(t, http.StatusOK, w.Code)
	var resp graphResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"s1"}, resp.RoutedSources)
	assert.Equal(t, []string{"mic2"}, resp.VirtualSources)
	assert.Empty(t, resp.Consumers)
}

func TestGraphServerDown(t *testing.T) {
	srv := memgraph.New()
	require.NoError(t, srv.Close())
	w := get(t, setup(t, srv), "/api/graph")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestMetrics(t *testing.T) {
	w := get(t, setup(t, memgraph.New()), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vsink_reconcile_passes_total 1")
}
