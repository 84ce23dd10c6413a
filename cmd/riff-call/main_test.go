package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/config"
	"github.com/ericbottard/streaming-function-invoker/internal/functions"
	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/transport/wsstream"
)

func dialer(t *testing.T, fn invoker.Function) *wsstream.Dialer {
	t.Helper()
	inv, err := invoker.NewServer(fn, codec.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(wsstream.NewHandler(inv))
	t.Cleanup(ts.Close)
	return wsstream.NewDialer("ws" + strings.TrimPrefix(ts.URL, "http"))
}

func TestRunPrintsResultsPerChannel(t *testing.T) {
	d := dialer(t, functions.SumAndEcho())
	cfg := config.ClientConfig{Transport: "ws", Outputs: 2, Inputs: []string{"0=a", "1=4", "1=5", "0=b"}}
	cfg.SetDefaults()
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx, cfg, d, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	sort.Strings(lines)
	want := []string{"0\t0:a", "0\t1:b", "1\t4", "1\t9"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", lines, want)
	}
}

func TestRunReportsFunctionError(t *testing.T) {
	d := dialer(t, functions.HundredDivider())
	cfg := config.ClientConfig{Transport: "ws", Inputs: []string{"0=0"}}
	cfg.SetDefaults()
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx, cfg, d, &out); invoker.KindOf(err) != invoker.KindFunction {
		t.Fatalf("err = %v, want function error", err)
	}
}

func TestRunRejectsBadInputs(t *testing.T) {
	cfg := config.ClientConfig{Inputs: []string{"nope"}}
	cfg.SetDefaults()
	if err := run(context.Background(), cfg, nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected an error")
	}
}
