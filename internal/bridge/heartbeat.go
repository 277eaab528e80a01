package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// heartbeatLoop issues a PING whenever the bridge has been idle for a whole
// interval, and tears the connection down if a reply is overdue by
// SyncTimeout (spec.md 4.D "Heartbeat"). Grounded on src/ron/heartbeat.go's
// periodic-submit-and-check loop, generalized from ron's HTTP POST/response
// round trip to a queued Message whose Future resolves asynchronously.
func (b *Bridge) heartbeatLoop(ctx context.Context, gen uint64, failCh chan<- error) {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var pending *message.Message
	var sentAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closeCh:
			return
		case <-ticker.C:
		}

		if pending != nil {
			select {
			case <-pending.Future().Done():
				if b.cfg.Metrics != nil {
					b.cfg.Metrics.HeartbeatRTT.WithLabelValues(b.cfg.Endpoint).Observe(time.Since(sentAt).Seconds())
				}
				pending = nil
			default:
				if time.Since(sentAt) > b.cfg.SyncTimeout {
					select {
					case failCh <- &rerror.ConnectionFailure{
						FailureType: rerror.SocketFailure,
						Endpoint:    b.cfg.Endpoint,
						Role:        b.cfg.Role.String(),
						Underlying:  fmt.Errorf("heartbeat overdue by more than %v", b.cfg.SyncTimeout),
					}:
					default:
					}
					return
				}
				continue
			}
		}

		if b.idleSince() < b.cfg.HeartbeatInterval {
			continue
		}

		ping := message.NewControl(message.CmdPing, respval.Void{})
		if err := b.Submit(ctx, ping); err != nil {
			continue
		}
		pending = ping
		sentAt = time.Now()
	}
}
