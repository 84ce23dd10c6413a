package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/stream"
)

// Kind classifies why an invocation failed.
type Kind int

const (
	KindUnknown Kind = iota
	// KindProtocolViolation is a malformed frame sequence.
	KindProtocolViolation
	// KindNoCodecFound means no codec can read or write a payload.
	KindNoCodecFound
	// KindDecode is client supplied content that could not be read.
	KindDecode
	// KindEncode is a result value the selected codec failed to write.
	KindEncode
	// KindFunction is an error raised by the user function or one of its
	// result sequences.
	KindFunction
	// KindCancelled is a cancelled stream or a vanished peer.
	KindCancelled
	// KindTransport is any other transport failure.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindProtocolViolation:
		return "protocol_violation"
	case KindNoCodecFound:
		return "no_codec"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindFunction:
		return "function"
	case KindCancelled:
		return "cancelled"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrNoCodecFound       = errors.New("no codec found")
	ErrDecode             = errors.New("undecodable payload")
	ErrEncode             = errors.New("unencodable value")
	ErrFunctionInvocation = errors.New("function invocation error")
	ErrTransportCancelled = errors.New("transport cancelled")
	ErrTransport          = errors.New("transport failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindNoCodecFound:
		return ErrNoCodecFound
	case KindDecode:
		return ErrDecode
	case KindEncode:
		return ErrEncode
	case KindFunction:
		return ErrFunctionInvocation
	case KindCancelled:
		return ErrTransportCancelled
	case KindTransport:
		return ErrTransport
	}
	return nil
}

// Error is the terminal error of an invocation. Channel is the input or
// output channel involved, or -1.
type Error struct {
	Kind    Kind
	Channel int
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	d := e.Detail()
	if d == "" {
		return e.Kind.sentinel().Error()
	}
	return e.Kind.sentinel().Error() + ": " + d
}

// Detail is the message without the kind prefix, for transports that carry
// the kind separately.
func (e *Error) Detail() string {
	var parts []string
	if e.Channel >= 0 {
		parts = append(parts, fmt.Sprintf("channel %d", e.Channel))
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewError builds an *Error. Use a negative channel when none applies.
func NewError(kind Kind, channel int, err error, format string, args ...any) *Error {
	if kind == KindUnknown {
		kind = KindTransport
	}
	if format == "" {
		return &Error{Kind: kind, Channel: channel, Err: err}
	}
	return &Error{Kind: kind, Channel: channel, Msg: fmt.Sprintf(format, args...), Err: err}
}

func protocolViolation(format string, args ...any) *Error {
	return NewError(KindProtocolViolation, -1, nil, format, args...)
}

// decodeError reports err from decoding a payload on channel.
func decodeError(channel int, err error) *Error {
	if errors.Is(err, codec.ErrNoCodec) {
		return NewError(KindNoCodecFound, channel, err, "")
	}
	return NewError(KindDecode, channel, err, "")
}

func encodeError(channel int, err error) *Error {
	if errors.Is(err, codec.ErrNoCodec) {
		return NewError(KindNoCodecFound, channel, err, "")
	}
	return NewError(KindEncode, channel, err, "")
}

// KindOf extracts the kind of err. Context cancellation counts as
// KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if isCancellation(err) {
		return KindCancelled
	}
	return KindUnknown
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrCanceled)
}

// classify keeps *Error values and turns anything else into err of kind,
// or into a cancellation when ctx is done.
func classify(ctx context.Context, err error, kind Kind, channel int) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if isCancellation(err) || ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return NewError(KindCancelled, channel, err, "")
	}
	return NewError(kind, channel, err, "")
}
