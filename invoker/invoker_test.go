package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/stream"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// loopback connects a Client to a Server in memory.
type loopback struct {
	srv       *Server
	opened    atomic.Int32
	cancelled atomic.Int32
	served    chan error
}

func newLoopback(t *testing.T, fn Function) *loopback {
	t.Helper()
	srv, err := NewServer(fn, codec.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &loopback{srv: srv, served: make(chan error, 1)}
}

func (l *loopback) Open(ctx context.Context) (ClientStream, error) {
	l.opened.Add(1)
	context.AfterFunc(ctx, func() { l.cancelled.Add(1) })
	up, down := stream.NewPipe(4), stream.NewPipe(4)
	go func() {
		err := l.srv.Serve(&loopServer{ctx: ctx, up: up, down: down})
		down.Close(err)
		l.served <- err
	}()
	return &loopClient{ctx: ctx, up: up, down: down}, nil
}

type loopServer struct {
	ctx      context.Context
	up, down *stream.Pipe
}

func (s *loopServer) Context() context.Context { return s.ctx }

func (s *loopServer) Recv() (*wire.Frame, error) {
	v, err := s.up.Next(s.ctx)
	if err != nil {
		return nil, err
	}
	return v.(*wire.Frame), nil
}

func (s *loopServer) Send(f *wire.Frame) error { return s.down.Send(s.ctx, f) }

type loopClient struct {
	ctx      context.Context
	up, down *stream.Pipe
}

func (c *loopClient) Send(f *wire.Frame) error { return c.up.Send(c.ctx, f) }

func (c *loopClient) Recv() (*wire.Frame, error) {
	v, err := c.down.Next(c.ctx)
	if err != nil {
		return nil, err
	}
	return v.(*wire.Frame), nil
}

func (c *loopClient) CloseSend() error {
	c.up.Close(nil)
	return nil
}

// recorder wraps a Dialer and keeps the start frame and the data frames of
// the last stream it opened.
type recorder struct {
	Dialer
	mu    sync.Mutex
	start *wire.StartFrame
	data  []*wire.DataFrame
}

func (r *recorder) Open(ctx context.Context) (ClientStream, error) {
	cs, err := r.Dialer.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &recordedStream{ClientStream: cs, r: r}, nil
}

func (r *recorder) received() []*wire.DataFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*wire.DataFrame(nil), r.data...)
}

type recordedStream struct {
	ClientStream
	r *recorder
}

func (s *recordedStream) Send(f *wire.Frame) error {
	if f.Start != nil {
		s.r.mu.Lock()
		s.r.start = f.Start
		s.r.mu.Unlock()
	}
	return s.ClientStream.Send(f)
}

func (s *recordedStream) Recv() (*wire.Frame, error) {
	f, err := s.ClientStream.Recv()
	if err == nil && f.Data != nil {
		s.r.mu.Lock()
		s.r.data = append(s.r.data, f.Data)
		s.r.mu.Unlock()
	}
	return f, err
}

// scripted replays fixed inbound frames and records what the server sends.
type scripted struct {
	ctx  context.Context
	mu   sync.Mutex
	in   []*wire.Frame
	sent []*wire.Frame
}

func (s *scripted) Context() context.Context { return s.ctx }

func (s *scripted) Recv() (*wire.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.in) == 0 {
		return nil, io.EOF
	}
	f := s.in[0]
	s.in = s.in[1:]
	return f, nil
}

func (s *scripted) Send(f *wire.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, f)
	return nil
}

func repeater() Function {
	return Function{
		Name:     "repeater",
		Contract: Contract{Inputs: []reflect.Type{TypeOf[string](), TypeOf[int]()}, Outputs: []reflect.Type{TypeOf[string]()}},
		Invoke: func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error) {
			out := stream.Generate(ctx, 0, func(ctx context.Context, emit func(any) error) error {
				for {
					w, err := args[0].Next(ctx)
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					n, err := args[1].Next(ctx)
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					for i := 0; i < n.(int); i++ {
						if err := emit(w); err != nil {
							return err
						}
					}
				}
			})
			return []stream.Seq{out}, nil
		},
	}
}

func divider() Function {
	return Func1("hundred-divider", func(_ context.Context, x int) (int, error) {
		if x == 0 {
			return 0, errors.New("division by zero")
		}
		return 100 / x, nil
	})
}

func identity(types ...reflect.Type) Function {
	return Function{
		Name:     "identity",
		Contract: Contract{Inputs: types, Outputs: types},
		Invoke:   func(_ context.Context, args []stream.Seq) ([]stream.Seq, error) { return args, nil },
	}
}

func TestZipRepeat(t *testing.T) {
	lb := newLoopback(t, repeater())
	rec := &recorder{Dialer: lb}
	c := NewClient(rec, codec.Default(), []reflect.Type{TypeOf[string]()},
		WithInputContentTypes("text/plain"), WithOutputContentTypes(0, "text/plain"))
	call, err := c.Invoke(context.Background(), stream.FromSlice("a", "b", "c"), stream.FromSlice(1, 2, 3))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got, err := stream.Collect(context.Background(), call.Results()[0])
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []any{"a", "b", "b", "c", "c", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if err := call.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := <-lb.served; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if lb.opened.Load() != 1 {
		t.Fatalf("opened %d streams", lb.opened.Load())
	}
	if !reflect.DeepEqual(rec.start.ExpectedContentTypes, [][]string{{"text/plain"}}) {
		t.Fatalf("start accept %v", rec.start.ExpectedContentTypes)
	}
	frames := rec.received()
	if len(frames) != len(want) {
		t.Fatalf("received %d frames", len(frames))
	}
	for _, df := range frames {
		if df.ContentType != "text/plain" {
			t.Fatalf("frame %q has content type %q", df.Payload, df.ContentType)
		}
	}
}

func TestDefaultOutputAcceptListsDecodableTypes(t *testing.T) {
	c := NewClient(newLoopback(t, repeater()), codec.Default(), []reflect.Type{TypeOf[string](), TypeOf[int]()},
		WithOutputContentTypes(1, "application/json"))
	accept := c.Accept()
	if !reflect.DeepEqual(accept[0], codec.Default().AcceptHeader(TypeOf[string]())) {
		t.Fatalf("channel 0 accept %v", accept[0])
	}
	if !reflect.DeepEqual(accept[1], []string{"application/json"}) {
		t.Fatalf("channel 1 accept %v", accept[1])
	}
}

func TestFunctionErrorAfterPartialResults(t *testing.T) {
	lb := newLoopback(t, divider())
	c := NewClient(lb, codec.Default(), []reflect.Type{TypeOf[int]()})
	call, err := c.Invoke(context.Background(), stream.FromSlice(1, 2, 0))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got, err := stream.Collect(context.Background(), call.Results()[0])
	if !errors.Is(err, ErrFunctionInvocation) {
		t.Fatalf("expected function error, got %v", err)
	}
	if !reflect.DeepEqual(got, []any{100, 50}) {
		t.Fatalf("got %v", got)
	}
	if KindOf(call.Wait()) != KindFunction {
		t.Fatalf("wait: %v", call.Wait())
	}
}

func TestFirstFrameMustBeStart(t *testing.T) {
	for arity := 1; arity <= 3; arity++ {
		types := make([]reflect.Type, arity)
		for i := range types {
			types[i] = TypeOf[string]()
		}
		srv, err := NewServer(identity(types...), codec.Default())
		if err != nil {
			t.Fatal(err)
		}
		cases := map[string][]*wire.Frame{
			"empty":      nil,
			"data first": {wire.NewData(0, "text/plain", nil, []byte("x"))},
			"invalid":    {{}},
		}
		for name, frames := range cases {
			st := &scripted{ctx: context.Background(), in: frames}
			err := srv.Serve(st)
			if !errors.Is(err, ErrProtocolViolation) {
				t.Fatalf("arity %d, %s: expected protocol violation, got %v", arity, name, err)
			}
			if len(st.sent) != 0 {
				t.Fatalf("arity %d, %s: server sent %d frames", arity, name, len(st.sent))
			}
		}
	}
}

func TestStartMustMatchOutputArity(t *testing.T) {
	srv, _ := NewServer(divider(), codec.Default())
	st := &scripted{ctx: context.Background(), in: []*wire.Frame{wire.NewStart([][]string{{"*/*"}, {"*/*"}})}}
	if err := srv.Serve(st); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("got %v", err)
	}
}

func TestChannelOutOfRange(t *testing.T) {
	srv, _ := NewServer(divider(), codec.Default())
	st := &scripted{ctx: context.Background(), in: []*wire.Frame{
		wire.NewStart([][]string{{"text/plain"}}),
		wire.NewData(1, "text/plain", nil, []byte("4")),
	}}
	err := srv.Serve(st)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestSecondStartIsProtocolViolation(t *testing.T) {
	srv, _ := NewServer(divider(), codec.Default())
	st := &scripted{ctx: context.Background(), in: []*wire.Frame{
		wire.NewStart([][]string{{"text/plain"}}),
		wire.NewStart([][]string{{"text/plain"}}),
	}}
	if err := srv.Serve(st); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("got %v", err)
	}
}

func TestServerHonoursAcceptedContentType(t *testing.T) {
	srv, _ := NewServer(repeater(), codec.Default())
	st := &scripted{ctx: context.Background(), in: []*wire.Frame{
		wire.NewStart([][]string{{"text/plain"}}),
		wire.NewData(0, "text/plain", nil, []byte("a")),
		wire.NewData(1, "text/plain", nil, []byte("2")),
	}}
	if err := srv.Serve(st); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if len(st.sent) != 2 {
		t.Fatalf("sent %d frames", len(st.sent))
	}
	for _, f := range st.sent {
		if f.Kind() != wire.KindData || f.Data.Channel != 0 || f.Data.ContentType != "text/plain" || string(f.Data.Payload) != "a" {
			t.Fatalf("unexpected frame %+v", f.Data)
		}
	}
}

func TestDecodeAndCodecErrors(t *testing.T) {
	srv, _ := NewServer(divider(), codec.Default())
	st := &scripted{ctx: context.Background(), in: []*wire.Frame{
		wire.NewStart([][]string{{"application/json"}}),
		wire.NewData(0, "application/json", nil, []byte("{")),
	}}
	if err := srv.Serve(st); KindOf(err) != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}

	type point struct{ X int }
	fn := Func1("point", func(_ context.Context, s string) (point, error) { return point{X: len(s)}, nil })
	srv, _ = NewServer(fn, codec.Default())
	st = &scripted{ctx: context.Background(), in: []*wire.Frame{
		wire.NewStart([][]string{{"text/plain"}}),
		wire.NewData(0, "text/plain", nil, []byte("abc")),
	}}
	err := srv.Serve(st)
	if !errors.Is(err, ErrNoCodecFound) || !errors.Is(err, codec.ErrNoCodec) {
		t.Fatalf("expected no codec, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Channel != 0 {
		t.Fatalf("expected channel 0 error, got %v", err)
	}
}

func TestFunctionPanicAndBadResults(t *testing.T) {
	panics := Function{
		Name:     "panics",
		Contract: Contract{Inputs: []reflect.Type{TypeOf[string]()}, Outputs: []reflect.Type{TypeOf[string]()}},
		Invoke:   func(context.Context, []stream.Seq) ([]stream.Seq, error) { panic("boom") },
	}
	short := panics
	short.Name = "short"
	short.Invoke = func(context.Context, []stream.Seq) ([]stream.Seq, error) { return nil, nil }
	for _, fn := range []Function{panics, short} {
		srv, _ := NewServer(fn, codec.Default())
		st := &scripted{ctx: context.Background(), in: []*wire.Frame{wire.NewStart([][]string{{"*/*"}})}}
		if err := srv.Serve(st); !errors.Is(err, ErrFunctionInvocation) {
			t.Fatalf("%s: got %v", fn.Name, err)
		}
	}
}

func TestPerChannelIdentity(t *testing.T) {
	types := []reflect.Type{TypeOf[int](), TypeOf[int](), TypeOf[int]()}
	lb := newLoopback(t, identity(types...))
	c := NewClient(lb, codec.Default(), types)
	var args []stream.Seq
	want := make([][]any, len(types))
	for ch := range types {
		for i := 0; i < 10; i++ {
			want[ch] = append(want[ch], ch*100+i)
		}
		args = append(args, stream.FromSlice(want[ch]...))
	}
	call, err := c.Invoke(context.Background(), args...)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got := make([][]any, len(types))
	errs := make([]error, len(types))
	var wg sync.WaitGroup
	for ch, r := range call.Results() {
		wg.Add(1)
		go func(ch int, r stream.Seq) {
			defer wg.Done()
			got[ch], errs[ch] = stream.Collect(context.Background(), r)
		}(ch, r)
	}
	wg.Wait()
	for ch := range types {
		if errs[ch] != nil {
			t.Fatalf("channel %d: %v", ch, errs[ch])
		}
		if !reflect.DeepEqual(got[ch], want[ch]) {
			t.Fatalf("channel %d: got %v, want %v", ch, got[ch], want[ch])
		}
	}
	if err := call.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestEmptyChannelCompletesEmpty(t *testing.T) {
	types := []reflect.Type{TypeOf[string](), TypeOf[string]()}
	lb := newLoopback(t, identity(types...))
	c := NewClient(lb, codec.Default(), types)
	call, err := c.Invoke(context.Background(), stream.FromSlice("only"), stream.FromSlice())
	if err != nil {
		t.Fatal(err)
	}
	first, err := stream.Collect(context.Background(), call.Results()[0])
	if err != nil || !reflect.DeepEqual(first, []any{"only"}) {
		t.Fatalf("channel 0: %v, %v", first, err)
	}
	second, err := stream.Collect(context.Background(), call.Results()[1])
	if err != nil || len(second) != 0 {
		t.Fatalf("channel 1: %v, %v", second, err)
	}
}

func TestCancellingResultsCancelsCall(t *testing.T) {
	observed := make(chan error, 1)
	fn := Function{
		Name:     "echo",
		Contract: Contract{Inputs: []reflect.Type{TypeOf[string]()}, Outputs: []reflect.Type{TypeOf[string]()}},
		Invoke: func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error) {
			out := stream.Generate(ctx, 0, func(ctx context.Context, emit func(any) error) error {
				defer func() { observed <- stream.Drain(context.Background(), args[0]) }()
				for {
					v, err := args[0].Next(ctx)
					if err != nil {
						return err
					}
					if err := emit(v); err != nil {
						return err
					}
				}
			})
			return []stream.Seq{out}, nil
		},
	}
	lb := newLoopback(t, fn)
	c := NewClient(lb, codec.Default(), []reflect.Type{TypeOf[string]()})

	producerStopped := make(chan struct{})
	infinite := stream.Generate(context.Background(), 0, func(ctx context.Context, emit func(any) error) error {
		defer close(producerStopped)
		for i := 0; ; i++ {
			if err := emit(fmt.Sprintf("x%d", i)); err != nil {
				return err
			}
		}
	})
	call, err := c.Invoke(context.Background(), infinite)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	res := call.Results()[0]
	for i := 0; i < 3; i++ {
		v, err := res.Next(context.Background())
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if v != fmt.Sprintf("x%d", i) {
			t.Fatalf("got %v", v)
		}
	}
	stream.Cancel(res)
	stream.Cancel(res)

	if err := call.Wait(); !errors.Is(err, ErrTransportCancelled) {
		t.Fatalf("wait: %v", err)
	}
	select {
	case err := <-observed:
		if err == nil {
			t.Fatal("function input completed instead of observing cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("function input never observed cancellation")
	}
	select {
	case <-producerStopped:
	case <-time.After(2 * time.Second):
		t.Fatal("argument producer still running")
	}
	if err := <-lb.served; KindOf(err) != KindCancelled {
		t.Fatalf("serve: %v", err)
	}
	call.Cancel()
	if n := lb.cancelled.Load(); n != 1 {
		t.Fatalf("stream cancelled %d times", n)
	}
}

func TestCancellingOneResultKeepsOthers(t *testing.T) {
	types := []reflect.Type{TypeOf[string](), TypeOf[string]()}
	lb := newLoopback(t, identity(types...))
	c := NewClient(lb, codec.Default(), types)
	call, err := c.Invoke(context.Background(), stream.FromSlice("a", "b"), stream.FromSlice("c", "d"))
	if err != nil {
		t.Fatal(err)
	}
	stream.Cancel(call.Results()[0])
	got, err := stream.Collect(context.Background(), call.Results()[1])
	if err != nil || !reflect.DeepEqual(got, []any{"c", "d"}) {
		t.Fatalf("got %v, %v", got, err)
	}
	if err := call.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestArgumentErrorCancelsCall(t *testing.T) {
	lb := newLoopback(t, identity(TypeOf[string]()))
	c := NewClient(lb, codec.Default(), []reflect.Type{TypeOf[string]()})
	broke := errors.New("caller broke")
	arg := stream.Generate(context.Background(), 0, func(_ context.Context, emit func(any) error) error {
		if err := emit("a"); err != nil {
			return err
		}
		return broke
	})
	call, err := c.Invoke(context.Background(), arg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = stream.Collect(context.Background(), call.Results()[0])
	if !errors.Is(err, ErrTransportCancelled) || !errors.Is(err, broke) {
		t.Fatalf("got %v", err)
	}
}

func TestInvokeUnary(t *testing.T) {
	reg := codec.Default()
	out, err := InvokeUnary(context.Background(), divider(), reg, codec.Message{Payload: []byte("4"), ContentType: "text/plain"}, []string{"text/plain"})
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Payload) != "25" || out.ContentType != "text/plain" {
		t.Fatalf("got %+v", out)
	}
	_, err = InvokeUnary(context.Background(), divider(), reg, codec.Message{Payload: []byte("0"), ContentType: "text/plain"}, nil)
	if KindOf(err) != KindFunction {
		t.Fatalf("expected function error, got %v", err)
	}
	_, err = InvokeUnary(context.Background(), divider(), reg, codec.Message{Payload: []byte("x"), ContentType: "text/plain"}, nil)
	if KindOf(err) != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	_, err = InvokeUnary(context.Background(), repeater(), reg, codec.Message{}, nil)
	if KindOf(err) != KindProtocolViolation {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestMultiplexFirstErrorWins(t *testing.T) {
	bad := errors.New("bad")
	enc := func(ch int) func(any) (*wire.DataFrame, error) {
		return func(v any) (*wire.DataFrame, error) {
			return &wire.DataFrame{Channel: ch, Payload: []byte(fmt.Sprint(v))}, nil
		}
	}
	out := Multiplex(context.Background(), []MuxInput{
		{Channel: 0, Seq: stream.FromSlice(1, 2), Encode: enc(0)},
		{Channel: 1, Seq: stream.Fail(bad), Encode: enc(1), Fail: func(err error) error { return NewError(KindFunction, 1, err, "") }},
	}, 1)
	_, err := stream.Collect(context.Background(), out)
	if !errors.Is(err, ErrFunctionInvocation) || !errors.Is(err, bad) {
		t.Fatalf("got %v", err)
	}
}

func TestMultiplexPreservesChannelOrder(t *testing.T) {
	enc := func(ch int) func(any) (*wire.DataFrame, error) {
		return func(v any) (*wire.DataFrame, error) {
			return &wire.DataFrame{Channel: ch, Payload: []byte(fmt.Sprint(v))}, nil
		}
	}
	var inputs []MuxInput
	for ch := 0; ch < 3; ch++ {
		var vals []any
		for i := 0; i < 20; i++ {
			vals = append(vals, i)
		}
		inputs = append(inputs, MuxInput{Channel: ch, Seq: stream.FromSlice(vals...), Encode: enc(ch)})
	}
	out := Multiplex(context.Background(), inputs, 2)
	next := make([]int, 3)
	for {
		df, err := NextFrame(context.Background(), out)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if string(df.Payload) != fmt.Sprint(next[df.Channel]) {
			t.Fatalf("channel %d out of order: %s", df.Channel, df.Payload)
		}
		next[df.Channel]++
	}
	for ch, n := range next {
		if n != 20 {
			t.Fatalf("channel %d delivered %d items", ch, n)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindDecode, 2, errors.New("eof"), "bad payload")
	if !errors.Is(err, ErrDecode) || errors.Is(err, ErrFunctionInvocation) {
		t.Fatalf("unexpected Is results for %v", err)
	}
	if got := err.Error(); got != "undecodable payload: channel 2: bad payload: eof" {
		t.Fatalf("got %q", got)
	}
	if KindOf(fmt.Errorf("wrapped: %w", context.Canceled)) != KindCancelled {
		t.Fatal("context cancellation not classified")
	}
	if KindOf(errors.New("x")) != KindUnknown {
		t.Fatal("plain error classified")
	}
}
