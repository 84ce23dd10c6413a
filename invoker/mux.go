package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ericbottard/streaming-function-invoker/stream"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// MuxInput is one sequence to interleave onto the wire.
type MuxInput struct {
	Channel int
	Seq     stream.Seq
	// Encode turns one item into a frame for Channel.
	Encode func(v any) (*wire.DataFrame, error)
	// Fail classifies an error returned by Seq. Nil keeps it as is.
	Fail func(err error) error
}

// Multiplex merges inputs into one bounded pipe of *wire.DataFrame, first
// ready first served. Items of one input keep their order. The first error,
// whether from a sequence or from Encode, fails the merged pipe and stops
// every other input. Cancelling the returned pipe cancels the inputs.
func Multiplex(ctx context.Context, inputs []MuxInput, buffer int) *stream.Pipe {
	out := stream.NewPipe(buffer)
	ctx, cancel := context.WithCancel(ctx)

	var once sync.Once
	fail := func(err error) {
		once.Do(func() {
			out.Close(err)
			cancel()
		})
	}

	go func() {
		select {
		case <-out.Canceled():
			fail(stream.ErrCanceled)
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func(in MuxInput) {
			defer wg.Done()
			if err := pump(ctx, in, out); err != nil {
				stream.Cancel(in.Seq)
				fail(err)
			}
		}(in)
	}
	go func() {
		wg.Wait()
		once.Do(func() { out.Close(nil) })
		cancel()
	}()
	return out
}

func pump(ctx context.Context, in MuxInput, out *stream.Pipe) error {
	for {
		v, err := in.Seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if in.Fail != nil {
				err = in.Fail(err)
			}
			return err
		}
		f, err := in.Encode(v)
		if err != nil {
			return err
		}
		if err := out.Send(ctx, f); err != nil {
			return err
		}
	}
}

// NextFrame reads the next merged frame from a pipe returned by Multiplex.
func NextFrame(ctx context.Context, merged *stream.Pipe) (*wire.DataFrame, error) {
	v, err := merged.Next(ctx)
	if err != nil {
		return nil, err
	}
	df, ok := v.(*wire.DataFrame)
	if !ok {
		return nil, fmt.Errorf("invoker: multiplexed %T, want *wire.DataFrame", v)
	}
	return df, nil
}
