package grpcstream

import (
	"context"
	"errors"
	"io"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// Trailer keys describing a failed invocation more precisely than the
// status code.
const (
	trailerKind    = "riff-error-kind"
	trailerChannel = "riff-error-channel"
)

var kindCodes = map[invoker.Kind]codes.Code{
	invoker.KindProtocolViolation: codes.FailedPrecondition,
	invoker.KindNoCodecFound:      codes.Unimplemented,
	invoker.KindDecode:            codes.InvalidArgument,
	invoker.KindEncode:            codes.Internal,
	invoker.KindFunction:          codes.Unknown,
	invoker.KindCancelled:         codes.Canceled,
	invoker.KindTransport:         codes.Unavailable,
}

// Code maps an invocation error kind to a gRPC status code.
func Code(k invoker.Kind) codes.Code {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return codes.Unknown
}

// toStatus turns an invocation error into a gRPC status. Nil stays nil.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *invoker.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.Canceled) {
			return status.Error(codes.Canceled, err.Error())
		}
		return status.Error(codes.Unknown, err.Error())
	}
	return status.Error(Code(e.Kind), e.Detail())
}

// trailerFor names the kind and channel of an invocation error.
func trailerFor(err error) metadata.MD {
	var e *invoker.Error
	if !errors.As(err, &e) {
		return nil
	}
	md := metadata.Pairs(trailerKind, e.Kind.String())
	if e.Channel >= 0 {
		md.Set(trailerChannel, strconv.Itoa(e.Channel))
	}
	return md
}

// fromStatus turns an error returned by a gRPC client stream back into an
// invocation error. io.EOF is passed through.
func fromStatus(err error, trailer metadata.MD) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			return invoker.NewError(invoker.KindCancelled, -1, err, "")
		}
		return invoker.NewError(invoker.KindTransport, -1, err, "")
	}
	kind := kindFromCode(st.Code())
	if v := trailer.Get(trailerKind); len(v) > 0 {
		if k, ok := parseKind(v[0]); ok {
			kind = k
		}
	}
	channel := -1
	if v := trailer.Get(trailerChannel); len(v) > 0 {
		if n, err := strconv.Atoi(v[0]); err == nil {
			channel = n
		}
	}
	return &invoker.Error{Kind: kind, Channel: channel, Msg: st.Message()}
}

func kindFromCode(c codes.Code) invoker.Kind {
	for k, code := range kindCodes {
		if code == c {
			return k
		}
	}
	switch c {
	case codes.DeadlineExceeded:
		return invoker.KindCancelled
	default:
		return invoker.KindTransport
	}
}

func parseKind(s string) (invoker.Kind, bool) {
	for k := range kindCodes {
		if k.String() == s {
			return k, true
		}
	}
	return invoker.KindUnknown, false
}
