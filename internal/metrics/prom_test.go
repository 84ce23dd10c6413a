package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ericbottard/streaming-function-invoker/invoker"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")

	var o invoker.Observer = Observer{}
	o.InvocationStarted("repeater")
	if v := testutil.ToFloat64(inflightInvocations); v != 1 {
		t.Fatalf("inflight: %v", v)
	}
	o.FrameReceived("repeater")
	o.FrameReceived("repeater")
	o.FrameSent("repeater")
	o.InvocationFinished("repeater", nil, 100*time.Millisecond)
	o.InvocationStarted("repeater")
	o.InvocationFinished("repeater", invoker.NewError(invoker.KindFunction, 0, errors.New("boom"), ""), time.Millisecond)

	if v := testutil.ToFloat64(inflightInvocations); v != 0 {
		t.Fatalf("inflight after finish: %v", v)
	}
	if v := testutil.ToFloat64(invocations.WithLabelValues("repeater", "success")); v != 1 {
		t.Fatalf("successful invocations: %v", v)
	}
	if v := testutil.ToFloat64(invocations.WithLabelValues("repeater", "function")); v != 1 {
		t.Fatalf("failed invocations: %v", v)
	}
	if v := testutil.ToFloat64(frames.WithLabelValues("repeater", "in")); v != 2 {
		t.Fatalf("frames in: %v", v)
	}
	if v := testutil.ToFloat64(frames.WithLabelValues("repeater", "out")); v != 1 {
		t.Fatalf("frames out: %v", v)
	}
	if n := testutil.CollectAndCount(invocationDuration); n != 1 {
		t.Fatalf("duration series: %d", n)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"success":            nil,
		"protocol_violation": invoker.NewError(invoker.KindProtocolViolation, -1, nil, "x"),
		"cancelled":          invoker.NewError(invoker.KindCancelled, -1, nil, ""),
		"unknown":            errors.New("plain"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}
