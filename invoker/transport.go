package invoker

import (
	"context"

	"github.com/ericbottard/streaming-function-invoker/wire"
)

// ServerStream is the serving side of one physical bidirectional stream.
// Recv returns io.EOF once the peer has finished sending.
type ServerStream interface {
	Context() context.Context
	Recv() (*wire.Frame, error)
	Send(*wire.Frame) error
}

// ClientStream is the calling side of one physical bidirectional stream.
// Cancelling the context passed to Dialer.Open cancels the stream.
type ClientStream interface {
	Send(*wire.Frame) error
	Recv() (*wire.Frame, error)
	CloseSend() error
}

// Dialer opens one physical stream per invocation.
type Dialer interface {
	Open(ctx context.Context) (ClientStream, error)
}
