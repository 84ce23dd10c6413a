// Package wsstream carries the invocation protocol over a WebSocket. Each
// frame is one JSON text message; an empty text message ends the sender's
// direction. The terminal error travels as the close status.
package wsstream

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// Subprotocol is negotiated by both ends.
const Subprotocol = "riff.invoke.v1"

// maxReason is the longest close reason a control frame can carry.
const maxReason = 123

var kindCodes = map[invoker.Kind]websocket.StatusCode{
	invoker.KindProtocolViolation: 4001,
	invoker.KindNoCodecFound:      4002,
	invoker.KindDecode:            4003,
	invoker.KindFunction:          4004,
	invoker.KindCancelled:         4005,
	invoker.KindEncode:            4006,
}

// CloseCode maps an invocation error kind to a close status.
func CloseCode(k invoker.Kind) websocket.StatusCode {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return websocket.StatusInternalError
}

// closeFor returns the status and reason ending a connection after err.
func closeFor(err error) (websocket.StatusCode, string) {
	if err == nil {
		return websocket.StatusNormalClosure, ""
	}
	reason := err.Error()
	var e *invoker.Error
	if errors.As(err, &e) {
		reason = e.Detail()
	}
	if len(reason) > maxReason {
		reason = reason[:maxReason]
	}
	return CloseCode(invoker.KindOf(err)), reason
}

// fromClose turns a read error into io.EOF for a normal closure or into an
// invocation error.
func fromClose(ctx context.Context, err error) error {
	var ce websocket.CloseError
	if !errors.As(err, &ce) {
		if ctx.Err() != nil {
			return invoker.NewError(invoker.KindCancelled, -1, ctx.Err(), "")
		}
		return invoker.NewError(invoker.KindTransport, -1, err, "")
	}
	if ce.Code == websocket.StatusNormalClosure {
		return io.EOF
	}
	kind := invoker.KindTransport
	for k, c := range kindCodes {
		if c == ce.Code {
			kind = k
		}
	}
	channel, msg := splitChannel(ce.Reason)
	return &invoker.Error{Kind: kind, Channel: channel, Msg: msg}
}

// splitChannel undoes the "channel N: " prefix of Error.Detail.
func splitChannel(reason string) (int, string) {
	rest, ok := strings.CutPrefix(reason, "channel ")
	if !ok {
		return -1, reason
	}
	num, msg, ok := strings.Cut(rest, ":")
	n, err := strconv.Atoi(num)
	if err != nil {
		return -1, reason
	}
	if ok {
		msg = strings.TrimSpace(msg)
	}
	return n, msg
}
