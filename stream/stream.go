// Package stream provides bounded, cancellable asynchronous sequences.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultBuffer is the pipe capacity used when none is configured.
const DefaultBuffer = 16

var (
	// ErrCanceled is returned to both ends of a pipe whose consumer gave up.
	ErrCanceled = errors.New("stream: canceled")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("stream: send on closed pipe")
)

// Seq is a pull-based sequence. Next returns io.EOF once the sequence has
// completed and any other error when it failed.
type Seq interface {
	Next(ctx context.Context) (any, error)
}

// Canceler is implemented by sequences whose producer can be told to stop.
type Canceler interface {
	Cancel()
}

// Cancel tells the producer of s to stop, if s supports it.
func Cancel(s Seq) {
	if c, ok := s.(Canceler); ok {
		c.Cancel()
	}
}

// Pipe is a bounded sequence fed by a single producer and read by a single
// consumer.
type Pipe struct {
	ch       chan any
	done     chan struct{}
	canceled chan struct{}

	closeOnce  sync.Once
	cancelOnce sync.Once
	err        error
}

// NewPipe returns a pipe holding up to buffer undelivered values.
func NewPipe(buffer int) *Pipe {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipe{
		ch:       make(chan any, buffer),
		done:     make(chan struct{}),
		canceled: make(chan struct{}),
	}
}

// Send delivers v, blocking while the buffer is full.
func (p *Pipe) Send(ctx context.Context, v any) error {
	select {
	case <-p.canceled:
		return ErrCanceled
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.ch <- v:
		return nil
	case <-p.canceled:
		return ErrCanceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the pipe. A nil err completes it. Only the first call has
// an effect; values already sent are still delivered.
func (p *Pipe) Close(err error) {
	p.closeOnce.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Next returns the next value, io.EOF after completion, the Close error after
// a failure, or ErrCanceled once the pipe was cancelled.
func (p *Pipe) Next(ctx context.Context) (any, error) {
	select {
	case <-p.canceled:
		return nil, ErrCanceled
	default:
	}
	select {
	case v := <-p.ch:
		return v, nil
	case <-p.done:
		select {
		case v := <-p.ch:
			return v, nil
		default:
		}
		if p.err != nil {
			return nil, p.err
		}
		return nil, io.EOF
	case <-p.canceled:
		return nil, ErrCanceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel signals that the consumer is no longer interested.
func (p *Pipe) Cancel() {
	p.cancelOnce.Do(func() { close(p.canceled) })
}

// Canceled is closed when the consumer cancels.
func (p *Pipe) Canceled() <-chan struct{} { return p.canceled }

// Done is closed when the producer closes the pipe.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Generate runs fn on its own goroutine and returns the pipe it emits into.
// fn's context is cancelled when the consumer cancels the pipe; a panic in fn
// fails the pipe.
func Generate(ctx context.Context, buffer int, fn func(ctx context.Context, emit func(any) error) error) *Pipe {
	p := NewPipe(buffer)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-p.canceled:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer cancel()
		p.Close(run(ctx, fn, func(v any) error { return p.Send(ctx, v) }))
	}()
	return p
}

func run(ctx context.Context, fn func(context.Context, func(any) error) error, emit func(any) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream: producer panic: %v", r)
		}
	}()
	return fn(ctx, emit)
}

// Map applies fn to every value of in.
func Map(ctx context.Context, in Seq, fn func(any) (any, error)) *Pipe {
	return Generate(ctx, DefaultBuffer, func(ctx context.Context, emit func(any) error) error {
		for {
			v, err := in.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					Cancel(in)
				}
				return err
			}
			out, err := fn(v)
			if err != nil {
				Cancel(in)
				return err
			}
			if err := emit(out); err != nil {
				Cancel(in)
				return err
			}
		}
	})
}

type sliceSeq struct {
	mu       sync.Mutex
	values   []any
	canceled bool
}

// FromSlice returns a sequence yielding values in order.
func FromSlice(values ...any) Seq {
	return &sliceSeq{values: values}
}

func (s *sliceSeq) Next(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return nil, ErrCanceled
	}
	if len(s.values) == 0 {
		return nil, io.EOF
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v, nil
}

func (s *sliceSeq) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
}

type failedSeq struct{ err error }

// Fail returns a sequence that fails immediately with err.
func Fail(err error) Seq { return failedSeq{err: err} }

func (f failedSeq) Next(context.Context) (any, error) { return nil, f.err }

// Collect reads s to completion. Values read before a failure are returned
// along with the error.
func Collect(ctx context.Context, s Seq) ([]any, error) {
	var out []any
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Drain discards the rest of s.
func Drain(ctx context.Context, s Seq) error {
	for {
		_, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
