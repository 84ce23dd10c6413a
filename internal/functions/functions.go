// Package functions is the catalog of functions the invoker binary can serve.
package functions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/stream"
)

// ErrUnknownFunction is returned by Lookup for a name not in the catalog.
var ErrUnknownFunction = errors.New("functions: unknown function")

var catalog = map[string]func() invoker.Function{
	"repeater":        Repeater,
	"hundred-divider": HundredDivider,
	"encode":          Encode,
	"uppercase":       Uppercase,
	"sum-and-echo":    SumAndEcho,
}

// Lookup returns the function registered under name.
func Lookup(name string) (invoker.Function, error) {
	f, ok := catalog[name]
	if !ok {
		return invoker.Function{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownFunction, name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// Names lists the catalog, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// next reads one value from s. ok is false at end of stream.
func next[T any](ctx context.Context, s stream.Seq) (v T, ok bool, err error) {
	x, err := s.Next(ctx)
	if errors.Is(err, io.EOF) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v, _ = x.(T)
	return v, true, nil
}

// Repeater zips a stream of words with a stream of counts and emits each
// word count times. It completes as soon as either input completes.
func Repeater() invoker.Function {
	return invoker.Function{
		Name: "repeater",
		Contract: invoker.Contract{
			Inputs:  []reflect.Type{invoker.TypeOf[string](), invoker.TypeOf[int]()},
			Outputs: []reflect.Type{invoker.TypeOf[string]()},
		},
		Invoke: func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error) {
			out := stream.Generate(ctx, 0, func(ctx context.Context, emit func(any) error) error {
				for {
					word, ok, err := next[string](ctx, args[0])
					if err != nil || !ok {
						return err
					}
					n, ok, err := next[int](ctx, args[1])
					if err != nil || !ok {
						return err
					}
					for i := 0; i < n; i++ {
						if err := emit(word); err != nil {
							return err
						}
					}
				}
			})
			return []stream.Seq{out}, nil
		},
	}
}

// HundredDivider maps x to 100/x and fails on zero.
func HundredDivider() invoker.Function {
	return invoker.Func1("hundred-divider", func(_ context.Context, x int) (int, error) {
		if x == 0 {
			return 0, errors.New("division by zero")
		}
		return 100 / x, nil
	})
}

// Encode run-length encodes a stream of integers: every run of equal values
// is emitted as its length followed by the value.
func Encode() invoker.Function {
	return invoker.Function{
		Name: "encode",
		Contract: invoker.Contract{
			Inputs:  []reflect.Type{invoker.TypeOf[int]()},
			Outputs: []reflect.Type{invoker.TypeOf[int]()},
		},
		Invoke: func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error) {
			out := stream.Generate(ctx, 0, func(ctx context.Context, emit func(any) error) error {
				var cur, run int
				flush := func() error {
					if run == 0 {
						return nil
					}
					if err := emit(run); err != nil {
						return err
					}
					return emit(cur)
				}
				for {
					v, ok, err := next[int](ctx, args[0])
					if err != nil {
						return err
					}
					if !ok {
						return flush()
					}
					if run > 0 && v == cur {
						run++
						continue
					}
					if err := flush(); err != nil {
						return err
					}
					cur, run = v, 1
				}
			})
			return []stream.Seq{out}, nil
		},
	}
}

// Uppercase upper-cases every string it receives.
func Uppercase() invoker.Function {
	return invoker.Func1("uppercase", func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
}

// SumAndEcho has two inputs and two outputs: the first output echoes the
// words prefixed with their position, the second carries the running sum of
// the numbers. Each output completes with its input.
func SumAndEcho() invoker.Function {
	return invoker.Function{
		Name: "sum-and-echo",
		Contract: invoker.Contract{
			Inputs:  []reflect.Type{invoker.TypeOf[string](), invoker.TypeOf[int]()},
			Outputs: []reflect.Type{invoker.TypeOf[string](), invoker.TypeOf[int]()},
		},
		Invoke: func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error) {
			echo := stream.Generate(ctx, 0, func(ctx context.Context, emit func(any) error) error {
				for i := 0; ; i++ {
					w, ok, err := next[string](ctx, args[0])
					if err != nil || !ok {
						return err
					}
					if err := emit(fmt.Sprintf("%d:%s", i, w)); err != nil {
						return err
					}
				}
			})
			sum := stream.Generate(ctx, 0, func(ctx context.Context, emit func(any) error) error {
				total := 0
				for {
					n, ok, err := next[int](ctx, args[1])
					if err != nil || !ok {
						return err
					}
					total += n
					if err := emit(total); err != nil {
						return err
					}
				}
			})
			return []stream.Seq{echo, sum}, nil
		},
	}
}
