package invoker

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/ericbottard/streaming-function-invoker/stream"
)

// Contract is the statically known shape of a function: one declared type per
// input and per output channel. Output channel i is the i-th returned
// sequence.
type Contract struct {
	Inputs  []reflect.Type
	Outputs []reflect.Type
}

// Arity returns the number of input and output channels.
func (c Contract) Arity() (int, int) { return len(c.Inputs), len(c.Outputs) }

// InputType returns the declared type of input channel i.
func (c Contract) InputType(i int) reflect.Type { return c.Inputs[i] }

// OutputType returns the declared type of output channel i.
func (c Contract) OutputType(i int) reflect.Type { return c.Outputs[i] }

// InvokeFunc receives one sequence per input channel and returns one per
// output channel. It is called once per invocation; ctx is cancelled when the
// invocation ends.
type InvokeFunc func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error)

// Function is an invocable function together with its contract.
type Function struct {
	Name     string
	Contract Contract
	Invoke   InvokeFunc
}

// Validate checks that the function can be served.
func (f Function) Validate() error {
	if f.Invoke == nil {
		return errors.New("invoker: function has no implementation")
	}
	n, m := f.Contract.Arity()
	if n == 0 || m == 0 {
		return fmt.Errorf("invoker: function %q needs at least one input and one output, has %d/%d", f.Name, n, m)
	}
	for i, t := range f.Contract.Inputs {
		if t == nil {
			return fmt.Errorf("invoker: function %q input %d has no type", f.Name, i)
		}
	}
	for i, t := range f.Contract.Outputs {
		if t == nil {
			return fmt.Errorf("invoker: function %q output %d has no type", f.Name, i)
		}
	}
	return nil
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// Func1 adapts a per-item function to a one input, one output Function.
func Func1[In, Out any](name string, fn func(ctx context.Context, in In) (Out, error)) Function {
	return Function{
		Name:     name,
		Contract: Contract{Inputs: []reflect.Type{TypeOf[In]()}, Outputs: []reflect.Type{TypeOf[Out]()}},
		Invoke: func(ctx context.Context, args []stream.Seq) ([]stream.Seq, error) {
			out := stream.Map(ctx, args[0], func(v any) (any, error) {
				in, _ := v.(In)
				return fn(ctx, in)
			})
			return []stream.Seq{out}, nil
		},
	}
}

// invoke calls fn once, turning panics into function errors.
func invoke(ctx context.Context, fn Function, args []stream.Seq) (results []stream.Seq, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(KindFunction, -1, nil, "function %q panicked: %v", fn.Name, r)
		}
	}()
	results, err = fn.Invoke(ctx, args)
	if err != nil {
		return nil, NewError(KindFunction, -1, err, "")
	}
	if _, m := fn.Contract.Arity(); len(results) != m {
		return nil, NewError(KindFunction, -1, nil, "function %q returned %d results, declared %d", fn.Name, len(results), m)
	}
	for i, r := range results {
		if r == nil {
			return nil, NewError(KindFunction, i, nil, "function %q returned a nil result", fn.Name)
		}
	}
	return results, nil
}
