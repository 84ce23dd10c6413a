package invoker

import (
	"context"
	"errors"
	"io"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/stream"
)

// InvokeUnary runs a one input function on a single decoded value and
// encodes the first value of its first result, for request/reply callers.
// A result that completes empty yields an empty message.
func InvokeUnary(ctx context.Context, fn Function, codecs *codec.Registry, in codec.Message, accept []string) (codec.Message, error) {
	n, m := fn.Contract.Arity()
	if n != 1 || m < 1 {
		return codec.Message{}, protocolViolation("request/reply needs a function with one input, %q has %d", fn.Name, n)
	}
	v, err := codecs.Decode(in, fn.Contract.InputType(0))
	if err != nil {
		return codec.Message{}, decodeError(0, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	results, err := invoke(ctx, fn, []stream.Seq{stream.FromSlice(v)})
	if err != nil {
		return codec.Message{}, err
	}
	defer func() {
		for _, r := range results {
			stream.Cancel(r)
		}
	}()

	out, err := results[0].Next(ctx)
	if errors.Is(err, io.EOF) {
		return codec.Message{}, nil
	}
	if err != nil {
		return codec.Message{}, classify(ctx, err, KindFunction, 0)
	}
	if len(accept) == 0 {
		accept = []string{"*/*"}
	}
	msg, err := codecs.Encode(out, fn.Contract.OutputType(0), accept)
	if err != nil {
		return codec.Message{}, encodeError(0, err)
	}
	return msg, nil
}
