package bridge

import (
	"context"
	"net"
	"time"

	"github.com/sandia-minimega/redimux/internal/metrics"
	"github.com/sandia-minimega/redimux/internal/mlog"
)

// DialFunc opens the transport-level connection to Endpoint. It is the
// bridge's sole transport injection point (left nil, a plain TCP dialer is
// used, which is what the package's tests rely on), and a TLS-upgrade step (spec.md 4.D handshake step 1) is layered in here, by
// returning an already-upgraded net.Conn, rather than the bridge itself
// importing crypto/tls decision logic (spec.md 1 scopes the handshake
// itself out as "assumed provided by a socket-layer library").
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Config carries everything one bridge needs: transport, credentials, and
// the queue/backpressure/reconnect knobs spec.md 4.D and 5 describe.
type Config struct {
	Endpoint string
	Role     Role

	Dial DialFunc

	Username   string
	Password   string
	ClientName string
	LibName    string
	LibVer     string
	DB         int
	WantRESP3  bool

	BacklogCap    int
	Admission     AdmissionPolicy
	HighWatermark int

	HeartbeatInterval time.Duration
	SyncTimeout       time.Duration

	Retry RetryPolicy

	Metrics *metrics.Set
	Logger  *mlog.Facade
}

func (c Config) withDefaults() Config {
	if c.Dial == nil {
		c.Dial = func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	if c.BacklogCap <= 0 {
		c.BacklogCap = 256
	}
	if c.HighWatermark <= 0 {
		c.HighWatermark = 1024
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Second
	}
	if c.Retry == nil {
		c.Retry = NewExponentialBackoff()
	}
	if c.Logger == nil {
		c.Logger = mlog.Named("bridge")
	}
	return c
}
