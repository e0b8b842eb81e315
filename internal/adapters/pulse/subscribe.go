package pulse

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse/proto"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
)

const eventBuffer = 256

// Subscribe opens a dedicated connection receiving every change event of
// the server. Closing the stream closes that connection.
func (cl *Client) Subscribe(ctx context.Context) (core.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cl.isClosed() {
		return nil, fmt.Errorf("subscribe: client closed: %w", core.ErrServerUnavailable)
	}
	c, conn, err := connect(cl.server, cl.name+"-events")
	if err != nil {
		return nil, err
	}
	stream := core.NewChanStream(eventBuffer, conn.Close)
	// proto.Connect has already started the read loop, so the callback is
	// installed late. Nothing arrives unsolicited before the subscription,
	// but a disconnect in this window still reaches a nil Callback.
	c.Callback = streamCallback(stream)
	if err := c.Request(&proto.Subscribe{Mask: proto.SubscriptionMaskAll}, nil); err != nil {
		_ = stream.Close()
		return nil, classify("subscribe", err)
	}
	cl.logger.Info().Msg("subscribed to change events")
	return stream, nil
}

func toEvent(ev *proto.SubscribeEvent) core.Event {
	return core.Event{Code: uint32(ev.Event), Index: ev.Index}
}

// streamCallback feeds change events into stream and closes it when the
// connection goes away, which ends the listener reading it.
func streamCallback(stream *core.ChanStream) func(interface{}) {
	return func(msg interface{}) {
		switch m := msg.(type) {
		case *proto.SubscribeEvent:
			stream.Publish(toEvent(m))
		case *proto.ConnectionClosed:
			_ = stream.Close()
		}
	}
}
