package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/internal/metrics"
	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// StatusClientClosedRequest is reported when the caller went away.
const StatusClientClosedRequest = 499

// unaryHandler invokes a one input function with the request body and
// answers with the first value of its first result.
func unaryHandler(d Deps, maxBody int64) http.HandlerFunc {
	fn := d.Invoker.Function()
	return func(w http.ResponseWriter, r *http.Request) {
		if !d.Admit() {
			http.Error(w, "invoker is draining", http.StatusServiceUnavailable)
			return
		}
		body := r.Body
		if maxBody > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			http.Error(w, "cannot read body", http.StatusRequestEntityTooLarge)
			return
		}
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			ct = "text/plain"
		}

		started := time.Now()
		out, err := invoker.InvokeUnary(r.Context(), fn, d.Codecs, codec.Message{Payload: payload, ContentType: ct}, r.Header.Values("Accept"))
		metrics.RecordInvocation(fn.Name, err, time.Since(started))
		if err != nil {
			status := StatusFor(err)
			logx.Log.Debug().Str("function", fn.Name).Int("status", status).Err(err).Msg("request/reply invocation failed")
			http.Error(w, err.Error(), status)
			return
		}
		if out.ContentType == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		for k, v := range out.Headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", out.ContentType)
		_, _ = w.Write(out.Payload)
	}
}

// StatusFor maps an invocation error to an HTTP status.
func StatusFor(err error) int {
	switch invoker.KindOf(err) {
	case invoker.KindProtocolViolation, invoker.KindDecode:
		return http.StatusBadRequest
	case invoker.KindNoCodecFound:
		var nf *codec.NotFoundError
		if errors.As(err, &nf) && nf.Op == "encode" {
			return http.StatusNotAcceptable
		}
		return http.StatusUnsupportedMediaType
	case invoker.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
