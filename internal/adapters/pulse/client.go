// Package pulse implements core.Graph over the PulseAudio native protocol.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
	"github.com/caph1993/caph1993-virtualSink/internal/domain"
	"github.com/caph1993/caph1993-virtualSink/internal/modargs"
)

// Client is a lazily (re)connecting PulseAudio connection. Besides the
// connection itself it keeps no state: every call queries the server.
type Client struct {
	server string
	name   string

	mu     sync.Mutex
	c      *proto.Client
	conn   net.Conn
	closed bool

	logger zerolog.Logger
}

// Dial connects to server ("" selects the default one) as clientName.
func Dial(server, clientName string) (*Client, error) {
	cl := newClient(server, clientName)
	if _, err := cl.client(); err != nil {
		return nil, err
	}
	return cl, nil
}

func newClient(server, clientName string) *Client {
	return &Client{
		server: server,
		name:   clientName,
		logger: log.With().Str("module", "adapters.pulse").Str("client", clientName).Logger(),
	}
}

func connect(server, name string) (*proto.Client, net.Conn, error) {
	c, conn, err := proto.Connect(server)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w: %w", core.ErrServerUnavailable, err)
	}
	props := proto.PropList{"application.name": proto.PropListString(name)}
	if err := c.Request(&proto.SetClientName{Props: props}, &proto.SetClientNameReply{}); err != nil {
		_ = conn.Close()
		return nil, nil, classify("set client name", err)
	}
	return c, conn, nil
}

func (cl *Client) client() (*proto.Client, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return nil, fmt.Errorf("client closed: %w", core.ErrServerUnavailable)
	}
	if cl.c != nil {
		return cl.c, nil
	}
	c, conn, err := connect(cl.server, cl.name)
	if err != nil {
		return nil, err
	}
	cl.adopt(c, conn)
	cl.logger.Info().Str("server", cl.server).Msg("connected")
	return c, nil
}

// adopt makes c the command connection. The protocol client invokes its
// Callback unconditionally when the read loop fails, so one must be set.
// Callers hold cl.mu.
func (cl *Client) adopt(c *proto.Client, conn net.Conn) {
	c.Callback = func(msg interface{}) {
		if _, ok := msg.(*proto.ConnectionClosed); ok {
			cl.drop(c)
		}
	}
	cl.c, cl.conn = c, conn
}

// drop forgets a broken connection so the next call redials.
func (cl *Client) drop(c *proto.Client) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.c != c {
		return
	}
	_ = cl.conn.Close()
	cl.c, cl.conn = nil, nil
	cl.logger.Warn().Msg("connection lost")
}

func (cl *Client) request(ctx context.Context, op string, req proto.RequestArgs, reply proto.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := cl.client()
	if err != nil {
		return err
	}
	if err := c.Request(req, reply); err != nil {
		err = classify(op, err)
		if errors.Is(err, core.ErrServerUnavailable) {
			cl.drop(c)
		}
		return err
	}
	return nil
}

// classify maps protocol errors to ErrCommandRejected and everything else
// (EOF, broken pipe, timeouts) to ErrServerUnavailable.
func classify(op string, err error) error {
	var perr proto.Error
	if errors.As(err, &perr) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrCommandRejected, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrServerUnavailable, err)
}

func (cl *Client) Modules(ctx context.Context) ([]domain.Module, error) {
	var reply proto.GetModuleInfoListReply
	if err := cl.request(ctx, "list modules", &proto.GetModuleInfoList{}, &reply); err != nil {
		return nil, err
	}
	return toModules(reply), nil
}

func (cl *Client) Sources(ctx context.Context) ([]domain.Source, error) {
	var reply proto.GetSourceInfoListReply
	if err := cl.request(ctx, "list sources", &proto.GetSourceInfoList{}, &reply); err != nil {
		return nil, err
	}
	return toSources(reply), nil
}

func (cl *Client) Consumers(ctx context.Context) ([]domain.Consumer, error) {
	var reply proto.GetSourceOutputInfoListReply
	if err := cl.request(ctx, "list source outputs", &proto.GetSourceOutputInfoList{}, &reply); err != nil {
		return nil, err
	}
	return toConsumers(reply), nil
}

func (cl *Client) load(ctx context.Context, kind, args string) (domain.ModuleID, error) {
	var reply proto.LoadModuleReply
	req := &proto.LoadModule{Name: kind, Args: args}
	if err := cl.request(ctx, "load "+kind, req, &reply); err != nil {
		return 0, err
	}
	return domain.ModuleID(reply.ModuleIndex), nil
}

func (cl *Client) CreateSink(ctx context.Context, name, description string) (domain.ModuleID, error) {
	return cl.load(ctx, domain.KindNullSink, modargs.SinkArgs(name, description))
}

func (cl *Client) CreateRoute(ctx context.Context, source, sink string) (domain.ModuleID, error) {
	return cl.load(ctx, domain.KindLoopback, modargs.RouteArgs(source, sink))
}

func (cl *Client) DestroyModule(ctx context.Context, id domain.ModuleID) error {
	return cl.request(ctx, "unload module", &proto.UnloadModule{ModuleIndex: uint32(id)}, nil)
}

// Close releases the connection. Every later call fails with
// core.ErrServerUnavailable.
func (cl *Client) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.closed = true
	if cl.conn == nil {
		return nil
	}
	err := cl.conn.Close()
	cl.c, cl.conn = nil, nil
	cl.logger.Info().Msg("closed")
	return err
}

func toModules(reply proto.GetModuleInfoListReply) []domain.Module {
	out := make([]domain.Module, 0, len(reply))
	for _, m := range reply {
		out = append(out, domain.Module{ID: domain.ModuleID(m.ModuleIndex), Kind: m.ModuleName, Args: m.ModuleArgs})
	}
	return out
}

func toSources(reply proto.GetSourceInfoListReply) []domain.Source {
	out := make([]domain.Source, 0, len(reply))
	for _, s := range reply {
		out = append(out, domain.Source{Index: s.SourceIndex, Name: s.SourceName})
	}
	return out
}

func toConsumers(reply proto.GetSourceOutputInfoListReply) []domain.Consumer {
	out := make([]domain.Consumer, 0, len(reply))
	for _, o := range reply {
		out = append(out, domain.Consumer{Index: o.SourceOutpuIndex, Name: o.MediaName, SourceIndex: o.SourceIndex})
	}
	return out
}

var (
	_ core.Graph      = (*Client)(nil)
	_ core.Subscriber = (*Client)(nil)
)

func (cl *Client) isClosed() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.closed
}
