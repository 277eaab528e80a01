package bridge

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

var errUnsolicitedReply = errors.New("bridge: reply with no matching in-flight message")

func (b *Bridge) markTraffic() {
	b.mu.Lock()
	b.lastTraffic = time.Now()
	b.mu.Unlock()
}

func (b *Bridge) idleSince() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastTraffic)
}

// readLoop decodes frames off conn until a read or decode fails; gen is not
// consulted, so closing conn is what stops it. Grounded on src/meshage/node.go's
// receiveHandler: one goroutine per socket direction, decode-and-dispatch
// in a tight loop.
func (b *Bridge) readLoop(conn net.Conn, gen uint64) error {
	scratch := make([]byte, 16*1024)
	for {
		r, err := b.dec.Next()
		if err != nil {
			if err == resp.ErrNeedMore {
				n, rerr := conn.Read(scratch)
				if rerr != nil {
					return &rerror.ConnectionFailure{FailureType: rerror.SocketClosed, Endpoint: b.cfg.Endpoint, Role: b.cfg.Role.String(), Underlying: rerr}
				}
				b.buf.Write(scratch[:n])
				continue
			}
			return &rerror.ProtocolDecodeError{Endpoint: b.cfg.Endpoint, Cause: err}
		}

		b.markTraffic()

		if b.cfg.Role == RoleSubscription || r.Kind == resp.KindPush {
			if b.PushHandler != nil {
				b.PushHandler(r)
			}
			continue
		}

		m := b.inflight.popFront()
		if m == nil {
			// A reply with nothing awaiting it is a protocol violation: the
			// bridge promises FIFO pairing (spec.md 4.D).
			return &rerror.ProtocolDecodeError{Endpoint: b.cfg.Endpoint, Cause: errUnsolicitedReply}
		}
		m.Complete(r, nil)
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.InFlightDepth.WithLabelValues(b.cfg.Endpoint).Set(float64(b.inflight.len()))
		}
	}
}

// writeLoop drains WriteReady, serializes each message's frame, and writes
// it to conn, moving non-fire-and-forget messages to In-flight. Grounded on
// src/minitunnel/minitunnel.go's mux() output goroutine.
func (b *Bridge) writeLoop(ctx context.Context, conn net.Conn, gen uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return nil
		case <-b.writeReadyQ.signal:
		}

		msgs := b.writeReadyQ.popAll()
		for i, m := range msgs {
			frame := m.Frame()
			if _, err := conn.Write(frame); err != nil {
				failure := &rerror.ConnectionFailure{FailureType: rerror.SocketFailure, Endpoint: b.cfg.Endpoint, Role: b.cfg.Role.String(), Underlying: err}
				m.Complete(resp.RawResult{}, failure)
				for _, rest := range msgs[i+1:] {
					rest.Complete(resp.RawResult{}, failure)
				}
				return failure
			}
			_ = m.Lifecycle.Transition(message.StateWritten)
			b.markTraffic()
			if b.cfg.Metrics != nil {
				b.cfg.Metrics.CommandsSent.WithLabelValues(b.cfg.Endpoint).Inc()
			}

			// Every frame read on a subscription bridge goes to PushHandler,
			// so nothing written there may wait in In-flight for a reply.
			if m.FireAndForget() || b.cfg.Role == RoleSubscription {
				m.CompleteFireAndForget()
				continue
			}
			_ = m.Lifecycle.Transition(message.StateAwaitingReply)
			b.inflight.pushBack(m)
		}
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.InFlightDepth.WithLabelValues(b.cfg.Endpoint).Set(float64(b.inflight.len()))
			b.cfg.Metrics.WriteReadyDepth.WithLabelValues(b.cfg.Endpoint).Set(0)
		}
	}
}
