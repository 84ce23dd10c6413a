package invoker

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/stream"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithInputContentTypes sets the content types, in order of preference,
// used to encode argument values. The default lets the codec registry pick.
func WithInputContentTypes(accept ...string) ClientOption {
	return func(c *Client) {
		if len(accept) > 0 {
			c.inputAccept = accept
		}
	}
}

// WithOutputContentTypes replaces the accept list advertised for one output
// channel. Without it the list is every content type the registry can
// decode into that channel's type.
func WithOutputContentTypes(channel int, accept ...string) ClientOption {
	return func(c *Client) {
		if c.acceptOverride == nil {
			c.acceptOverride = map[int][]string{}
		}
		c.acceptOverride[channel] = append([]string(nil), accept...)
	}
}

// WithClientBuffer sets the per channel buffer size.
func WithClientBuffer(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Client invokes a remote function through a Dialer.
type Client struct {
	dialer         Dialer
	codecs         *codec.Registry
	outputs        []reflect.Type
	accept         [][]string
	acceptOverride map[int][]string
	inputAccept    []string
	buffer         int
}

// NewClient returns a client expecting one result channel per entry of
// outputs. The accept lists sent with every call are computed here.
func NewClient(d Dialer, codecs *codec.Registry, outputs []reflect.Type, opts ...ClientOption) *Client {
	c := &Client{
		dialer:      d,
		codecs:      codecs,
		outputs:     append([]reflect.Type(nil), outputs...),
		inputAccept: []string{"*/*"},
		buffer:      stream.DefaultBuffer,
	}
	for _, o := range opts {
		o(c)
	}
	c.accept = make([][]string, len(c.outputs))
	for i, t := range c.outputs {
		if o, ok := c.acceptOverride[i]; ok && len(o) > 0 {
			c.accept[i] = o
			continue
		}
		c.accept[i] = codecs.AcceptHeader(t)
	}
	return c
}

// Accept returns the per output channel accept lists sent in the start frame.
func (c *Client) Accept() [][]string { return c.accept }

// Call is one running invocation.
type Call struct {
	cancel  context.CancelFunc
	results []stream.Seq
	done    chan struct{}

	mu       sync.Mutex
	err      error
	released int
}

// Invoke opens one stream, sends the start frame and then the interleaved
// items of args. Results are read from Call.Results.
func (c *Client) Invoke(ctx context.Context, args ...stream.Seq) (*Call, error) {
	if len(args) == 0 {
		return nil, errors.New("invoker: invoke needs at least one argument sequence")
	}
	ctx, cancel := context.WithCancel(ctx)
	cs, err := c.dialer.Open(ctx)
	if err != nil {
		cancel()
		return nil, classify(ctx, err, KindTransport, -1)
	}
	if err := cs.Send(wire.NewStart(c.accept)); err != nil {
		if errors.Is(err, io.EOF) {
			// The peer already ended the stream; Recv reports why.
			if _, rerr := cs.Recv(); rerr != nil && !errors.Is(rerr, io.EOF) {
				err = rerr
			}
		}
		cancel()
		return nil, classify(ctx, err, KindTransport, -1)
	}

	call := &Call{cancel: cancel, done: make(chan struct{})}
	in := newDemux(len(c.outputs), c.buffer)
	for _, p := range in.pipes {
		call.results = append(call.results, &result{pipe: p, call: call})
	}

	sendCtx, stopSending := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.send(sendCtx, ctx, call, cs, args)
	}()
	go func() {
		defer wg.Done()
		defer stopSending()
		err := in.run(ctx, cs.Recv, func(d *wire.DataFrame) (any, error) {
			return c.codecs.Decode(codec.Message{Payload: d.Payload, ContentType: d.ContentType, Headers: d.Headers}, c.outputs[d.Channel])
		}, nil)
		if err != nil {
			call.fail(classify(ctx, err, KindTransport, -1))
		}
		in.close(call.Err())
	}()
	go func() {
		wg.Wait()
		cancel()
		close(call.done)
	}()
	return call, nil
}

func (c *Client) send(ctx, callCtx context.Context, call *Call, cs ClientStream, args []stream.Seq) {
	inputs := make([]MuxInput, len(args))
	for i, arg := range args {
		inputs[i] = MuxInput{
			Channel: i,
			Seq:     arg,
			Encode: func(v any) (*wire.DataFrame, error) {
				msg, err := c.codecs.Encode(v, nil, c.inputAccept)
				if err != nil {
					return nil, encodeError(i, err)
				}
				return &wire.DataFrame{Channel: i, ContentType: msg.ContentType, Headers: msg.Headers, Payload: msg.Payload}, nil
			},
			Fail: func(err error) error {
				if ctx.Err() != nil {
					return err
				}
				return NewError(KindCancelled, i, err, "argument sequence failed")
			},
		}
	}
	out := Multiplex(ctx, inputs, c.buffer)
	for {
		df, err := NextFrame(ctx, out)
		if errors.Is(err, io.EOF) {
			if err := cs.CloseSend(); err != nil && callCtx.Err() == nil {
				call.fail(classify(callCtx, err, KindTransport, -1))
			}
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				call.fail(err)
			}
			out.Cancel()
			return
		}
		if err := cs.Send(&wire.Frame{Data: df}); err != nil {
			out.Cancel()
			// io.EOF means the peer ended the stream; Recv reports why.
			if !errors.Is(err, io.EOF) && callCtx.Err() == nil {
				call.fail(classify(callCtx, err, KindTransport, df.Channel))
			}
			return
		}
	}
}

// Results returns one sequence per output channel. Cancelling one of them
// drops its remaining values; cancelling all of them cancels the call.
func (cl *Call) Results() []stream.Seq { return cl.results }

// Cancel aborts the call. Every open result sequence fails with a
// cancellation error.
func (cl *Call) Cancel() {
	cl.fail(NewError(KindCancelled, -1, context.Canceled, "call cancelled"))
}

// Wait blocks until both directions of the stream have finished and returns
// the terminal error, nil on success.
func (cl *Call) Wait() error {
	<-cl.done
	return cl.Err()
}

// Err returns the first failure recorded so far, if any.
func (cl *Call) Err() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.err
}

func (cl *Call) fail(err error) {
	select {
	case <-cl.done:
		return
	default:
	}
	cl.mu.Lock()
	if cl.err == nil {
		cl.err = err
	}
	cl.mu.Unlock()
	cl.cancel()
}

func (cl *Call) release() {
	cl.mu.Lock()
	cl.released++
	all := cl.released == len(cl.results)
	cl.mu.Unlock()
	if all {
		cl.Cancel()
	}
}

type result struct {
	pipe *stream.Pipe
	call *Call
	once sync.Once
}

func (r *result) Next(ctx context.Context) (any, error) { return r.pipe.Next(ctx) }

func (r *result) Cancel() {
	r.once.Do(func() {
		r.pipe.Cancel()
		r.call.release()
	})
}
