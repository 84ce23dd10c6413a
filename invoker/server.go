package invoker

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/stream"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// State is the lifecycle of one served invocation.
type State string

const (
	StateAwaitingStart State = "awaiting_start"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Observer is notified of invocation activity. Implementations must be safe
// for concurrent use.
type Observer interface {
	InvocationStarted(function string)
	InvocationFinished(function string, err error, elapsed time.Duration)
	FrameReceived(function string)
	FrameSent(function string)
}

type nopObserver struct{}

func (nopObserver) InvocationStarted(string) {}
func (nopObserver) InvocationFinished(string, error, time.Duration) {}
func (nopObserver) FrameReceived(string) {}
func (nopObserver) FrameSent(string) {}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithObserver reports invocation activity to o.
func WithObserver(o Observer) ServerOption {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithBuffer sets the per channel buffer size.
func WithBuffer(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithLogger replaces the shared logger.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// Server serves invocations of one function. It is safe for concurrent use;
// every call to Serve owns its own session.
type Server struct {
	fn       Function
	codecs   *codec.Registry
	buffer   int
	observer Observer
	log      zerolog.Logger
}

// NewServer returns a server for fn using codecs for every payload.
func NewServer(fn Function, codecs *codec.Registry, opts ...ServerOption) (*Server, error) {
	if err := fn.Validate(); err != nil {
		return nil, err
	}
	if codecs == nil {
		return nil, errors.New("invoker: nil codec registry")
	}
	s := &Server{fn: fn, codecs: codecs, buffer: stream.DefaultBuffer, observer: nopObserver{}, log: logx.Log}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Function returns the served function.
func (s *Server) Function() Function { return s.fn }

// Description summarises a served function for diagnostics.
type Description struct {
	Name    string     `json:"name"`
	Inputs  []string   `json:"inputs"`
	Outputs []string   `json:"outputs"`
	Accept  [][]string `json:"accept"`
}

// Describe lists the contract and, per input channel, the content types the
// server can decode.
func (s *Server) Describe() Description {
	d := Description{Name: s.fn.Name}
	for _, t := range s.fn.Contract.Inputs {
		d.Inputs = append(d.Inputs, codec.TypeName(t))
		d.Accept = append(d.Accept, s.codecs.AcceptHeader(t))
	}
	for _, t := range s.fn.Contract.Outputs {
		d.Outputs = append(d.Outputs, codec.TypeName(t))
	}
	return d
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu  sync.Mutex
	err error
}

// fail records the first failure and cancels every stage.
func (ss *session) fail(err error) {
	ss.mu.Lock()
	if ss.err == nil {
		ss.err = err
	}
	ss.mu.Unlock()
	ss.cancel()
}

func (ss *session) failure() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.err
}

func (ss *session) state(st State) {
	ss.log.Debug().Str("state", string(st)).Msg("invocation state")
}

// Serve runs one invocation over st and returns its terminal error, nil on
// success. On failure it returns without waiting for the goroutine reading
// st: the caller only learns the failure once Serve returns, so that reader
// ends when the transport tears st down.
func (s *Server) Serve(st ServerStream) error {
	ctx, cancel := context.WithCancel(st.Context())
	defer cancel()
	ss := &session{
		ctx:    ctx,
		cancel: cancel,
		log:    s.log.With().Str("invocation_id", uuid.NewString()).Str("function", s.fn.Name).Logger(),
	}
	started := time.Now()
	s.observer.InvocationStarted(s.fn.Name)
	err := s.serve(ss, st)
	s.observer.InvocationFinished(s.fn.Name, err, time.Since(started))
	if err != nil {
		ss.state(StateFailed)
		ev := ss.log.Warn()
		if KindOf(err) == KindCancelled {
			ev = ss.log.Debug()
		}
		ev.Str("kind", KindOf(err).String()).Err(err).Msg("invocation failed")
		return err
	}
	ss.state(StateCompleted)
	return nil
}

func (s *Server) serve(ss *session, st ServerStream) error {
	ss.state(StateAwaitingStart)
	start, err := s.awaitStart(ss.ctx, st)
	if err != nil {
		return err
	}
	ss.state(StateRunning)

	n, m := s.fn.Contract.Arity()
	in := newDemux(n, s.buffer)
	inboundDone := make(chan struct{})
	go func() {
		defer close(inboundDone)
		err := in.run(ss.ctx, st.Recv, func(d *wire.DataFrame) (any, error) {
			return s.codecs.Decode(codec.Message{Payload: d.Payload, ContentType: d.ContentType, Headers: d.Headers}, s.fn.Contract.InputType(d.Channel))
		}, func() { s.observer.FrameReceived(s.fn.Name) })
		if err != nil {
			ss.fail(classify(ss.ctx, err, KindTransport, -1))
			in.close(ss.failure())
			return
		}
		in.close(nil)
	}()

	results, err := invoke(ss.ctx, s.fn, in.seqs())
	if err != nil {
		ss.fail(err)
		return ss.failure()
	}

	inputs := make([]MuxInput, m)
	for i := range results {
		accept := start.Accept(i)
		inputs[i] = MuxInput{
			Channel: i,
			Seq:     results[i],
			Encode: func(v any) (*wire.DataFrame, error) {
				msg, err := s.codecs.Encode(v, s.fn.Contract.OutputType(i), accept)
				if err != nil {
					return nil, encodeError(i, err)
				}
				return &wire.DataFrame{Channel: i, ContentType: msg.ContentType, Headers: msg.Headers, Payload: msg.Payload}, nil
			},
			Fail: func(err error) error {
				if ss.ctx.Err() != nil {
					if prior := ss.failure(); prior != nil {
						return prior
					}
				}
				return classify(ss.ctx, err, KindFunction, i)
			},
		}
	}
	out := Multiplex(ss.ctx, inputs, s.buffer)
	for {
		df, err := NextFrame(ss.ctx, out)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ss.fail(classify(ss.ctx, err, KindTransport, -1))
			return ss.failure()
		}
		if err := st.Send(&wire.Frame{Data: df}); err != nil {
			ss.fail(classify(ss.ctx, err, KindTransport, df.Channel))
			return ss.failure()
		}
		s.observer.FrameSent(s.fn.Name)
	}

	// Output is complete; whatever the caller still sends is dropped until it
	// closes its side.
	in.discard()
	select {
	case <-inboundDone:
	case <-ss.ctx.Done():
		ss.fail(NewError(KindCancelled, -1, ss.ctx.Err(), "stream closed before end of input"))
	}
	return ss.failure()
}

func (s *Server) awaitStart(ctx context.Context, st ServerStream) (*wire.StartFrame, error) {
	f, err := st.Recv()
	if errors.Is(err, io.EOF) {
		return nil, protocolViolation("stream ended before start frame")
	}
	if err != nil {
		return nil, classify(ctx, err, KindTransport, -1)
	}
	if err := f.Validate(); err != nil {
		return nil, protocolViolation("%v", err)
	}
	if f.Kind() != wire.KindStart {
		return nil, protocolViolation("first frame must be start, got %s", f.Kind())
	}
	if _, m := s.fn.Contract.Arity(); f.Start.Channels() != m {
		return nil, protocolViolation("start declares %d output channels, function has %d", f.Start.Channels(), m)
	}
	return f.Start, nil
}
