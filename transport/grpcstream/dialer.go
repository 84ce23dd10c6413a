package grpcstream

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// Dialer opens one Invoke stream per invocation on a shared connection.
type Dialer struct {
	cc   grpc.ClientConnInterface
	opts []grpc.CallOption
}

// NewDialer returns a Dialer using cc. Call options are added to every
// stream.
func NewDialer(cc grpc.ClientConnInterface, opts ...grpc.CallOption) *Dialer {
	return &Dialer{cc: cc, opts: append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)}
}

// Dial connects to target without transport security. maxFrame bounds the
// size of received frames when positive.
func Dial(target string, maxFrame int, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	if maxFrame > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxFrame)))
	}
	return grpc.NewClient(target, opts...)
}

// Open starts an Invoke stream bound to ctx.
func (d *Dialer) Open(ctx context.Context) (invoker.ClientStream, error) {
	cs, err := d.cc.NewStream(ctx, &ServiceDesc.Streams[0], InvokeMethod, d.opts...)
	if err != nil {
		return nil, fromStatus(err, nil)
	}
	return &clientStream{cs: cs}, nil
}

type clientStream struct {
	cs grpc.ClientStream
}

func (c *clientStream) Send(f *wire.Frame) error { return c.cs.SendMsg(f) }

func (c *clientStream) Recv() (*wire.Frame, error) {
	f := new(wire.Frame)
	if err := c.cs.RecvMsg(f); err != nil {
		return nil, fromStatus(err, c.cs.Trailer())
	}
	return f, nil
}

func (c *clientStream) CloseSend() error { return c.cs.CloseSend() }
