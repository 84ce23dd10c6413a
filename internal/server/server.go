// Package server builds the HTTP surface of the invoker: health, state,
// metrics, the OpenAPI description, the WebSocket invoke endpoint and the
// request/reply endpoint.
package server

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/config"
	"github.com/ericbottard/streaming-function-invoker/internal/inflight"
	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/internal/serverstate"
	"github.com/ericbottard/streaming-function-invoker/invoker"
	"github.com/ericbottard/streaming-function-invoker/transport/wsstream"
)

// Deps are the collaborators the HTTP surface reports on and serves with.
type Deps struct {
	Invoker  *invoker.Server
	Codecs   *codec.Registry
	Inflight *inflight.Counter
	State    *serverstate.Registry
	// Metrics serves /metrics when the metrics address is the HTTP address.
	Metrics prometheus.Gatherer
	// Admit reports whether new invocations are accepted. Defaults to not
	// draining.
	Admit   func() bool
	Version string
}

// New constructs the HTTP handler for the invoker.
func New(cfg config.InvokerConfig, d Deps) http.Handler {
	if d.Codecs == nil {
		d.Codecs = codec.Default()
	}
	if d.Inflight == nil {
		d.Inflight = &inflight.Counter{}
	}
	if d.State == nil {
		d.State = serverstate.NewRegistry()
	}
	if d.Admit == nil {
		d.Admit = func() bool { return !serverstate.IsDraining() }
	}

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(chiMiddleware.RequestID, chiMiddleware.Recoverer, requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !serverstate.IsReady() {
			http.Error(w, serverstate.GetState(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/state", stateHandler(d))
	r.Get("/api/openapi.json", openAPIHandler(d))

	if cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.HTTPAddr() {
		g := d.Metrics
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	r.Handle("/invoke", wsstream.NewHandler(d.Invoker,
		wsstream.WithAdmission(d.Admit),
		wsstream.WithReadLimit(cfg.MaxFrameBytes),
		wsstream.WithOriginPatterns(originHosts(cfg.AllowedOrigins)...),
	))
	r.With(d.Inflight.Middleware()).Post("/", unaryHandler(d, cfg.MaxFrameBytes))
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chiMiddleware.GetReqID(r.Context())
		logx.Log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

// originHosts converts CORS origins to the host patterns the WebSocket
// upgrade checks.
func originHosts(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
