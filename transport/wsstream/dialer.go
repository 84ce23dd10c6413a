package wsstream

import (
	"context"
	"io"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// Dialer opens one WebSocket connection per invocation.
type Dialer struct {
	URL       string
	Header    http.Header
	ReadLimit int64
	Client    *http.Client
}

// NewDialer returns a Dialer for a ws:// or wss:// URL.
func NewDialer(url string) *Dialer {
	return &Dialer{URL: url}
}

// Open dials the invoker. Cancelling ctx closes the connection with the
// cancellation status.
func (d *Dialer) Open(ctx context.Context) (invoker.ClientStream, error) {
	ws, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient:   d.Client,
		HTTPHeader:   d.Header,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, invoker.NewError(invoker.KindTransport, -1, err, "dial %s", d.URL)
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	context.AfterFunc(ctx, func() {
		_ = ws.Close(CloseCode(invoker.KindCancelled), "call cancelled")
	})
	return &clientConn{conn{ctx: ctx, ws: ws}}, nil
}

type clientConn struct {
	conn
}

// Send reports a failed write as io.EOF: the peer has closed the connection
// and the next Recv returns its close status.
func (c *clientConn) Send(f *wire.Frame) error {
	if err := c.conn.Send(f); err != nil {
		if c.ctx.Err() != nil {
			return err
		}
		return io.EOF
	}
	return nil
}
