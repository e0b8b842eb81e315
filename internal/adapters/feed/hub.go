// Package feed streams reconciliation deltas to websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/caph1993/caph1993-virtualSink/internal/domain"
)

const sendBuffer = 32

// Message is the JSON frame sent for every pass that changed something.
type Message struct {
	Type    string       `json:"type"`
	Sink    string       `json:"sink"`
	Delta   domain.Delta `json:"delta"`
	Sources []string     `json:"sources"`
	Apps    []string     `json:"apps"`
}

type Hub struct {
	Policy Policy

	mu    sync.RWMutex
	conns map[string]*wsConn

	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		Policy: SimplePolicy{},
		conns:  make(map[string]*wsConn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.With().Str("module", "adapters.feed").Logger(),
	}
}

// Serve upgrades the request and registers the connection until ctx ends
// or the peer leaves.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	c := &wsConn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.logger.Info().Str("id", c.id).Msg("subscriber joined")

	go c.writePump(ctx)
	go c.readPump(func() { h.remove(c.id) })
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; ok {
		delete(h.conns, id)
		h.logger.Info().Str("id", id).Msg("subscriber left")
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// OnPass broadcasts non-empty deltas.
func (h *Hub) OnPass(sink string, snap domain.Snapshot, delta domain.Delta) {
	if delta.Empty() {
		return
	}
	h.Broadcast(Message{
		Type:    "delta",
		Sink:    sink,
		Delta:   delta,
		Sources: snap.Sources.Sorted(),
		Apps:    snap.Apps.Sorted(),
	})
}

func (h *Hub) Broadcast(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("broadcast marshal")
		return
	}
	h.mu.RLock()
	snapshot := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		err := c.TrySend(frame)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrBackpressure) && h.Policy.OnBackPressure(c.id) == DropMessage {
			continue
		}
		h.logger.Warn().Err(err).Str("id", c.id).Msg("dropping subscriber")
		c.Close()
		h.remove(c.id)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*wsConn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
