package functions

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ericbottard/streaming-function-invoker/stream"
)

func run(t *testing.T, name string, args ...[]any) [][]any {
	t.Helper()
	fn, err := Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	if err := fn.Validate(); err != nil {
		t.Fatalf("validate %s: %v", name, err)
	}
	ctx := context.Background()
	seqs := make([]stream.Seq, len(args))
	for i, a := range args {
		seqs[i] = stream.FromSlice(a...)
	}
	results, err := fn.Invoke(ctx, seqs)
	if err != nil {
		t.Fatalf("invoke %s: %v", name, err)
	}
	out := make([][]any, len(results))
	for i, r := range results {
		vals, err := stream.Collect(ctx, r)
		if err != nil {
			t.Fatalf("%s result %d: %v", name, i, err)
		}
		out[i] = vals
	}
	return out
}

func TestCatalog(t *testing.T) {
	tests := []struct {
		name string
		args [][]any
		want [][]any
	}{
		{"repeater", [][]any{{"one", "two", "three"}, {1, 2}}, [][]any{{"one", "two", "two"}}},
		{"hundred-divider", [][]any{{1, 4, 50}}, [][]any{{100, 25, 2}}},
		{"encode", [][]any{{1, 1, 2, 3, 3, 3}}, [][]any{{2, 1, 1, 2, 3, 3}}},
		{"encode", [][]any{{}}, [][]any{{}}},
		{"uppercase", [][]any{{"riff"}}, [][]any{{"RIFF"}}},
		{"sum-and-echo", [][]any{{"a", "b"}, {1, 2, 3}}, [][]any{{"0:a", "1:b"}, {1, 3, 6}}},
	}
	for _, tt := range tests {
		got := run(t, tt.name, tt.args...)
		for i := range got {
			if len(got[i]) == 0 && len(tt.want[i]) == 0 {
				continue
			}
			if !reflect.DeepEqual(got[i], tt.want[i]) {
				t.Fatalf("%s result %d = %v, want %v", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestHundredDividerByZero(t *testing.T) {
	fn := HundredDivider()
	results, err := fn.Invoke(context.Background(), []stream.Seq{stream.FromSlice(5, 0, 2)})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	vals, err := stream.Collect(context.Background(), results[0])
	if err == nil || err.Error() != "division by zero" {
		t.Fatalf("err = %v, want division by zero", err)
	}
	if !reflect.DeepEqual(vals, []any{20}) {
		t.Fatalf("values before failure = %v", vals)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("nope"); !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("err = %v", err)
	}
	if got := Names(); len(got) != 5 || got[0] != "encode" {
		t.Fatalf("names = %v", got)
	}
}
