package bridge

import (
	"math/rand"
	"time"
)

// RetryPolicy computes the delay before reconnect attempt number attempt
// (the bridge passes 1 for the first reconnect after a failure). Grounded on ron.heartbeat's retry-with-jitter loop
// (src/ron/heartbeat.go), generalized from a fixed per-rate jitter to
// exponential backoff capped at Max.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles Base per attempt, capping at Max, and then
// picks a random delay between half and all of that value so that a fleet of bridges reconnecting to the same endpoint
// after a shared outage does not do so in lockstep.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
	rnd  *rand.Rand
}

// NewExponentialBackoff returns the default reconnect policy: 100ms base,
// 30s cap.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base: 100 * time.Millisecond,
		Max:  30 * time.Second,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	jitter := time.Duration(b.rnd.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}
