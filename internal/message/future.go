package message

import (
	"context"
	"sync"

	"github.com/sandia-minimega/redimux/internal/respval"
)

// Future is the caller-visible awaitable a Message resolves into. A
// fire-and-forget message's Future resolves as soon as its frame has been
// written, without waiting for a reply.
type Future interface {
	// Wait blocks until the Message completes, is cancelled, or ctx is
	// done, whichever comes first.
	Wait(ctx context.Context) (interface{}, error)

	// Done returns a channel closed once the Future has resolved, for
	// callers that want to select on multiple futures at once.
	Done() <-chan struct{}
}

type future struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	value    interface{}
	err      error
	outcome  *respval.Result
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(value interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.value, f.err, f.resolved = value, err, true
	close(f.done)
}

func (f *future) resolveOutcome(out respval.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	o := out
	f.outcome = &o
	f.resolved = true
	close(f.done)
}

// Outcome returns the non-Completed respval.Result that resolved this
// future, if any, for callers (the bridge, the selector) that need to act
// on a redirect or retry rather than surface a plain error.
func (f *future) Outcome() (respval.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcome == nil {
		return respval.Result{}, false
	}
	return *f.outcome, true
}

func (f *future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *future) Done() <-chan struct{} { return f.done }
