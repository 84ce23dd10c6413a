package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/config"
	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/internal/reconnect"
	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/stream"
	"github.com/ericbottard/streaming-function-invoker/transport/grpcstream"
	"github.com/ericbottard/streaming-function-invoker/transport/wsstream"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	var cfg config.ClientConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()
	fs := flag.NewFlagSet("riff-call", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	cfg.BindFlags(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "riff-call version=%s sha=%s date=%s\n\nusage: riff-call -i 0=hello -i 1=2 [flags]\n\n", version, buildSHA, buildDate)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if *showVersion {
		fmt.Printf("riff-call version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var d invoker.Dialer
	switch cfg.Transport {
	case "ws":
		d = wsstream.NewDialer(cfg.Target)
	default:
		cc, err := grpcstream.Dial(cfg.Target, 0)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("target", cfg.Target).Msg("dial")
		}
		defer func() { _ = cc.Close() }()
		d = grpcstream.NewDialer(cc)
	}

	if err := run(ctx, cfg, d, os.Stdout); err != nil {
		logx.Log.Error().Str("kind", invoker.KindOf(err).String()).Err(err).Msg("call failed")
		cancel()
		os.Exit(1)
	}
}

// run invokes the function with the configured inputs and prints every
// result value as "channel<TAB>value".
func run(ctx context.Context, cfg config.ClientConfig, d invoker.Dialer, out io.Writer) error {
	inputs, err := cfg.ParseInputs()
	if err != nil {
		return err
	}
	outputs := make([]reflect.Type, cfg.Outputs)
	for i := range outputs {
		outputs[i] = invoker.TypeOf[any]()
	}
	client := invoker.NewClient(d, codec.Default(), outputs, invoker.WithInputContentTypes(cfg.ContentType))

	var call *invoker.Call
	err = reconnect.Retry(ctx, cfg.Retries, func(ctx context.Context) error {
		args := make([]stream.Seq, len(inputs))
		for i, values := range inputs {
			vals := make([]any, len(values))
			for j, v := range values {
				vals[j] = v
			}
			args[i] = stream.FromSlice(vals...)
		}
		call, err = client.Invoke(ctx, args...)
		if err != nil {
			logx.Log.Debug().Err(err).Msg("open call")
		}
		return err
	})
	if err != nil {
		return err
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, r := range call.Results() {
		wg.Add(1)
		go func(ch int, r stream.Seq) {
			defer wg.Done()
			for {
				v, err := r.Next(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				_, _ = fmt.Fprintf(out, "%d\t%v\n", ch, v)
				mu.Unlock()
			}
		}(i, r)
	}
	wg.Wait()
	return call.Wait()
}
