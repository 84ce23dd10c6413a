package logx_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ericbottard/streaming-function-invoker/internal/logx"
)

func TestConfigureLogLevel(t *testing.T) {
	t.Cleanup(func() { logx.Configure("info") })
	cases := map[string]zerolog.Level{
		"all":     zerolog.TraceLevel,
		"WARNING": zerolog.WarnLevel,
		" debug ": zerolog.DebugLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		logx.Configure(in)
		if zerolog.GlobalLevel() != want {
			t.Fatalf("Configure(%q): expected %s, got %s", in, want, zerolog.GlobalLevel())
		}
	}
}

func TestComponentJSONOutput(t *testing.T) {
	t.Cleanup(func() { logx.Configure("info") })
	logx.Configure("info")
	var buf bytes.Buffer
	logx.SetOutput(&buf, true)
	l := logx.Component("grpc")
	l.Info().Str("function", "repeater").Msg("serving")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["component"] != "grpc" || entry["function"] != "repeater" || entry["message"] != "serving" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
