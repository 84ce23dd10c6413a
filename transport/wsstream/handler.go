package wsstream

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// Handler serves invocations of one function, one per WebSocket connection.
type Handler struct {
	inv       *invoker.Server
	admit     func() bool
	readLimit int64
	origins   []string
	log       zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAdmission answers 503 while admit returns false.
func WithAdmission(admit func() bool) Option {
	return func(h *Handler) { h.admit = admit }
}

// WithReadLimit bounds the size of one inbound frame.
func WithReadLimit(n int64) Option {
	return func(h *Handler) { h.readLimit = n }
}

// WithOriginPatterns allows cross origin upgrades from the given host
// patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// NewHandler returns an http.Handler serving inv.
func NewHandler(inv *invoker.Server, opts ...Option) *Handler {
	h := &Handler{inv: inv, log: logx.Component("wsstream")}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.admit != nil && !h.admit() {
		http.Error(w, "invoker is draining", http.StatusServiceUnavailable)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}
	code, reason := closeFor(h.inv.Serve(&conn{ctx: r.Context(), ws: ws}))
	_ = ws.Close(code, reason)
}
