package grpcstream

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// Server exposes an invoker.Server as the streaming.Riff gRPC service.
type Server struct {
	inv   *invoker.Server
	admit func() bool
}

// Option configures a Server.
type Option func(*Server)

// WithAdmission rejects new invocations with codes.Unavailable while admit
// returns false, for instance during a drain.
func WithAdmission(admit func() bool) Option {
	return func(s *Server) { s.admit = admit }
}

// NewServer wraps inv.
func NewServer(inv *invoker.Server, opts ...Option) *Server {
	s := &Server{inv: inv}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Invoke serves one invocation. The terminal error is reported as a status
// with trailers naming its kind and channel.
func (s *Server) Invoke(stream Riff_InvokeServer) error {
	if s.admit != nil && !s.admit() {
		return status.Error(codes.Unavailable, "invoker is draining")
	}
	err := s.inv.Serve(stream)
	if md := trailerFor(err); md != nil {
		stream.SetTrailer(md)
	}
	return toStatus(err)
}
