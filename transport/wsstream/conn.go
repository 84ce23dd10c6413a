package wsstream

import (
	"context"
	"encoding/json"
	"io"

	"github.com/coder/websocket"

	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// conn is the framing shared by both ends.
type conn struct {
	ctx context.Context
	ws  *websocket.Conn
}

func (c *conn) Send(f *wire.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.ws.Write(c.ctx, websocket.MessageText, b)
}

func (c *conn) Recv() (*wire.Frame, error) {
	typ, data, err := c.ws.Read(c.ctx)
	if err != nil {
		return nil, fromClose(c.ctx, err)
	}
	if typ != websocket.MessageText {
		return nil, invoker.NewError(invoker.KindProtocolViolation, -1, nil, "unexpected binary message")
	}
	if len(data) == 0 {
		return nil, io.EOF
	}
	f := new(wire.Frame)
	if err := json.Unmarshal(data, f); err != nil {
		return nil, invoker.NewError(invoker.KindProtocolViolation, -1, err, "malformed frame")
	}
	return f, nil
}

// CloseSend marks the end of this side's frames.
func (c *conn) CloseSend() error {
	return c.ws.Write(c.ctx, websocket.MessageText, nil)
}

func (c *conn) Context() context.Context { return c.ctx }
