package invoker

import (
	"context"
	"errors"
	"io"

	"github.com/ericbottard/streaming-function-invoker/stream"
	"github.com/ericbottard/streaming-function-invoker/wire"
)

// demux routes Data frames to one pipe per channel. The pipes exist before
// the first frame is read, so a channel that never receives a frame is still
// there to be consumed and completes empty at end of stream.
type demux struct {
	pipes []*stream.Pipe
}

func newDemux(channels, buffer int) *demux {
	d := &demux{pipes: make([]*stream.Pipe, channels)}
	for i := range d.pipes {
		d.pipes[i] = stream.NewPipe(buffer)
	}
	return d
}

// seqs exposes the pipes as sequences, in channel order.
func (d *demux) seqs() []stream.Seq {
	out := make([]stream.Seq, len(d.pipes))
	for i, p := range d.pipes {
		out[i] = p
	}
	return out
}

// run reads frames until recv reports end of stream (nil) or fails. It does
// not close the pipes; the caller decides with which error.
func (d *demux) run(ctx context.Context, recv func() (*wire.Frame, error), decode func(*wire.DataFrame) (any, error), onFrame func()) error {
	for {
		f, err := recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f.Validate(); err != nil {
			return protocolViolation("%v", err)
		}
		if f.Kind() != wire.KindData {
			return protocolViolation("unexpected %s frame after start", f.Kind())
		}
		ch := f.Data.Channel
		if ch < 0 || ch >= len(d.pipes) {
			return protocolViolation("channel %d out of range [0, %d)", ch, len(d.pipes))
		}
		if onFrame != nil {
			onFrame()
		}
		p := d.pipes[ch]
		select {
		case <-p.Canceled():
			continue
		default:
		}
		v, err := decode(f.Data)
		if err != nil {
			return decodeError(ch, err)
		}
		if err := p.Send(ctx, v); err != nil {
			if errors.Is(err, stream.ErrCanceled) {
				continue
			}
			return err
		}
	}
}

// discard cancels every pipe so further frames are dropped.
func (d *demux) discard() {
	for _, p := range d.pipes {
		p.Cancel()
	}
}

func (d *demux) close(err error) {
	for _, p := range d.pipes {
		p.Close(err)
	}
}
