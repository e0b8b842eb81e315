package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caph1993/caph1993-virtualSink/internal/domain"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(ctx, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHubBroadcastsDelta(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	prev := domain.NewSnapshot([]string{"s1"}, nil)
	next := domain.NewSnapshot([]string{"s1", "s2"}, []string{"Recorder"})
	hub.OnPass("X", next, domain.Diff(prev, next))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "delta", msg.Type)
	assert.Equal(t, "X", msg.Sink)
	assert.Equal(t, []string{"s2"}, msg.Delta.ConnectedSources)
	assert.Equal(t, []string{"Recorder"}, msg.Delta.ConnectedApps)
	assert.Equal(t, []string{"s1", "s2"}, msg.Sources)
}

func TestHubSkipsEmptyDelta(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	snap := domain.NewSnapshot([]string{"s1"}, nil)
	hub.OnPass("X", snap, domain.Diff(snap, snap))
	hub.Broadcast(Message{Type: "marker"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"marker"`)
}

func TestHubForgetsClosedSubscriber(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	hub.Close()
	assert.Equal(t, 0, hub.Count())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestTrySendBackpressure(t *testing.T) {
	c := &wsConn{send: make(chan []byte, 1)}
	require.NoError(t, c.TrySend([]byte("a")))
	assert.ErrorIs(t, c.TrySend([]byte("b")), ErrBackpressure)
}

func TestSimplePolicyKicks(t *testing.T) {
	assert.Equal(t, KickSubscriber, SimplePolicy{}.OnBackPressure("id"))
}
