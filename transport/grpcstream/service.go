// Package grpcstream carries the invocation protocol over one bidirectional
// gRPC stream. Frames are sent with a JSON codec, so no generated protobuf
// code is needed; the service is described by hand.
package grpcstream

import (
	"google.golang.org/grpc"

	"github.com/ericbottard/streaming-function-invoker/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "streaming.Riff"

// InvokeMethod is the full method name of the streaming invocation.
const InvokeMethod = "/" + ServiceName + "/Invoke"

// RiffServer is implemented by gRPC invocation servers.
type RiffServer interface {
	Invoke(Riff_InvokeServer) error
}

// Riff_InvokeServer is the server side of one Invoke stream.
type Riff_InvokeServer interface {
	Send(*wire.Frame) error
	Recv() (*wire.Frame, error)
	grpc.ServerStream
}

type riffInvokeServer struct {
	grpc.ServerStream
}

func (x *riffInvokeServer) Send(f *wire.Frame) error { return x.ServerStream.SendMsg(f) }

func (x *riffInvokeServer) Recv() (*wire.Frame, error) {
	f := new(wire.Frame)
	if err := x.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func invokeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RiffServer).Invoke(&riffInvokeServer{stream})
}

// ServiceDesc describes the streaming.Riff service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiffServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Invoke",
		Handler:       invokeHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "riff.proto",
}

// RegisterRiffServer registers srv on s.
func RegisterRiffServer(s grpc.ServiceRegistrar, srv RiffServer) {
	s.RegisterService(&ServiceDesc, srv)
}
