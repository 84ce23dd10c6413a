package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/config"
	"github.com/ericbottard/streaming-function-invoker/internal/functions"
	"github.com/ericbottard/streaming-function-invoker/internal/inflight"
	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/internal/metrics"
	"github.com/ericbottard/streaming-function-invoker/internal/server"
	"github.com/ericbottard/streaming-function-invoker/internal/serverstate"
	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/transport/grpcstream"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func flagSet(cfg *config.InvokerConfig, showVersion *bool) *flag.FlagSet {
	fs := flag.NewFlagSet("riff-invoker", flag.ExitOnError)
	fs.BoolVar(showVersion, "version", false, "print version and exit")
	cfg.BindFlags(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "riff-invoker version=%s sha=%s date=%s\n\nfunctions: %v\n\n", version, buildSHA, buildDate, functions.Names())
		fs.PrintDefaults()
	}
	return fs
}

func main() {
	var cfg config.InvokerConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()
	var showVersion bool
	_ = flagSet(&cfg, &showVersion).Parse(os.Args[1:])
	if showVersion {
		fmt.Printf("riff-invoker version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if err := cfg.LoadOptionalFile(cfg.ConfigFile); err != nil {
		logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
	}
	// environment and flags win over the file
	cfg.ApplyEnv()
	_ = flagSet(&cfg, &showVersion).Parse(os.Args[1:])
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	fn, err := functions.Lookup(cfg.Function)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("lookup function")
	}

	if cfg.RedisAddr != "" {
		host, _ := os.Hostname()
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr, serverstate.KeyFor(fn.Name, host))
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		defer func() { _ = rs.Close() }()
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}
	serverstate.SetFunction(fn.Name)

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	counter := &inflight.Counter{}
	codecs := codec.Default()
	inv, err := invoker.NewServer(fn, codecs,
		invoker.WithObserver(counter.Observer(metrics.Observer{})),
		invoker.WithBuffer(cfg.StreamBuffer),
	)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("create invoker")
	}
	admit := func() bool { return !serverstate.IsDraining() }

	stateReg := serverstate.NewRegistry()
	stateReg.Add(serverstate.Element{ID: "build", Data: func() any {
		return map[string]string{"version": version, "sha": buildSHA, "date": buildDate}
	}})
	handler := server.New(cfg, server.Deps{
		Invoker:  inv,
		Codecs:   codecs,
		Inflight: counter,
		State:    stateReg,
		Metrics:  preg,
		Admit:    admit,
		Version:  version,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.HTTPAddr() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	grpcSrv := grpc.NewServer(
		grpc.MaxRecvMsgSize(int(cfg.MaxFrameBytes)),
		grpc.MaxSendMsgSize(int(cfg.MaxFrameBytes)),
	)
	grpcstream.RegisterRiffServer(grpcSrv, grpcstream.NewServer(inv, grpcstream.WithAdmission(admit)))
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logx.Log.Fatal().Err(err).Str("addr", cfg.GRPCAddr()).Msg("grpc listen")
	}
	go func() {
		logx.Log.Info().Str("addr", cfg.GRPCAddr()).Msg("grpc starting")
		if err := grpcSrv.Serve(lis); err != nil {
			logx.Log.Error().Err(err).Msg("grpc error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int64("inflight", counter.Load()).Msg("draining; send SIGTERM again to terminate immediately")
			go func(d time.Duration) {
				if counter.Drain(d) {
					logx.Log.Info().Msg("drained")
				} else {
					logx.Log.Warn().Int64("inflight", counter.Load()).Msg("drain timeout exceeded; terminating")
				}
				cancel()
			}(cfg.DrainTimeout)
		}
	}()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if counter.Load() > 0 {
			grpcSrv.Stop()
		} else {
			grpcSrv.GracefulStop()
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	serverstate.SetState(serverstate.StatusReady)
	logx.Log.Info().Str("function", fn.Name).Str("addr", cfg.HTTPAddr()).Msg("invoker starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	<-stopped
	serverstate.SetState(serverstate.StatusNotReady)
}
