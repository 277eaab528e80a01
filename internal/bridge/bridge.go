// Package bridge implements the connection bridge (spec.md 4.D): it owns
// one physical socket to one server endpoint, preserves FIFO reply order,
// and surfaces connection failures to every message it was holding.
//
// Grounded on src/meshage/node.go's handleConnection/receiveHandler pair
// (one goroutine per socket direction, a mutex-guarded client map
// generalized here to a single owned socket) and src/ron/heartbeat.go's
// retry-with-jitter loop, with the write-side queueing modeled on
// src/minitunnel/minitunnel.go's mux() (an `out` channel drained by a
// dedicated goroutine, decode loop routing frames back to their caller).
package bridge

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/ringbuf"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// Bridge owns one physical connection to one server endpoint.
type Bridge struct {
	cfg Config

	mu         sync.Mutex
	state      State
	conn       net.Conn
	dec        *resp.Decoder
	buf        *ringbuf.Buffer
	attempt    int
	generation uint64

	// role/version info learned during handshake, read by the endpoint
	// layer to decide routing (primary vs replica).
	serverRole    string
	serverVersion string

	backlogQ    *backlog
	inflight    *inflightQueue
	writeReadyQ *writeReadyQueue

	lastTraffic time.Time
	pendingPing *message.Message

	// PushHandler, if set, receives every RESP3 push frame (and every
	// frame read on a subscription-role bridge) instead of it being popped
	// off the in-flight queue. Set once by the owning endpoint before
	// Start.
	PushHandler func(resp.RawResult)

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs a Bridge. Start must be called to begin connecting.
func New(cfg Config) *Bridge {
	cfg = cfg.withDefaults()
	return &Bridge{
		cfg:         cfg,
		state:       StateDisconnected,
		backlogQ:    newBacklog(cfg.BacklogCap),
		inflight:    newInflightQueue(),
		writeReadyQ: newWriteReadyQueue(),
		closeCh:     make(chan struct{}),
		lastTraffic: time.Now(),
	}
}

// State returns the bridge's current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Endpoint returns the address this bridge connects to.
func (b *Bridge) Endpoint() string { return b.cfg.Endpoint }

// Start launches the connection-management task: dial, handshake, run the
// read/write loops and heartbeat, and reconnect on failure, until ctx is
// done or Close is called.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.connectLoop(ctx)
	}()
}

func (b *Bridge) connectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.teardown(ctx.Err())
			return
		case <-b.closeCh:
			return
		default:
		}

		b.setState(StateConnecting)
		err := b.runConnection(ctx)
		if err == nil {
			// runConnection only returns nil when ctx/closeCh fired.
			return
		}

		b.cfg.Logger.Warn("bridge %s: connection lost: %v", b.cfg.Endpoint, err)
		b.setState(StateConnectedFailing)
		b.failInFlight(err)
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.Reconnects.WithLabelValues(b.cfg.Endpoint).Inc()
		}

		// Authentication failures are terminal for this endpoint until
		// configuration changes (spec.md 4.D); everything else is
		// retryable.
		if cf, ok := err.(*rerror.ConnectionFailure); ok && cf.FailureType == rerror.AuthenticationFailure {
			b.teardown(err)
			return
		}

		b.mu.Lock()
		b.attempt++
		attempt := b.attempt
		b.mu.Unlock()

		delay := b.cfg.Retry.NextDelay(attempt)
		select {
		case <-ctx.Done():
			b.teardown(ctx.Err())
			return
		case <-b.closeCh:
			return
		case <-time.After(delay):
		}
	}
}

// runConnection dials, handshakes, and runs one connection's read/write/
// heartbeat loops until it fails or the bridge is told to stop. A nil
// return means the bridge is shutting down deliberately; any other return
// is the failure that ended the connection.
func (b *Bridge) runConnection(ctx context.Context) error {
	conn, err := b.cfg.Dial(ctx, b.cfg.Endpoint)
	if err != nil {
		return &rerror.ConnectionFailure{FailureType: rerror.UnableToConnect, Endpoint: b.cfg.Endpoint, Role: b.cfg.Role.String(), Underlying: err}
	}

	b.setState(StateHandshaking)
	protocol, err := b.handshake(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.buf = ringbuf.New(4096)
	b.dec = resp.NewDecoder(protocol, b.buf)
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	b.setState(StateConnectedEstablishing)
	b.replayBacklog()
	b.setState(StateConnectedEstablished)
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
	b.cfg.Logger.Info("bridge %s: connected (%s)", b.cfg.Endpoint, b.cfg.Role)

	failCh := make(chan error, 2)

	var innerWG sync.WaitGroup
	innerWG.Add(2)
	go func() { defer innerWG.Done(); failCh <- b.readLoop(conn, gen) }()
	go func() { defer innerWG.Done(); failCh <- b.writeLoop(ctx, conn, gen) }()

	hbDone := make(chan struct{})
	go func() { defer close(hbDone); b.heartbeatLoop(ctx, gen, failCh) }()

	var result error
	select {
	case result = <-failCh:
	case <-ctx.Done():
		result = ctx.Err()
	case <-b.closeCh:
		result = nil
	}

	conn.Close()
	innerWG.Wait()
	<-hbDone

	if result == nil {
		return nil
	}
	return result
}

func (b *Bridge) replayBacklog() {
	for _, m := range b.backlogQ.drain() {
		b.enqueueWrite(m)
	}
}

func (b *Bridge) enqueueWrite(m *message.Message) {
	_ = m.Lifecycle.Transition(message.StateQueued)
	b.writeReadyQ.push(m)
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.WriteReadyDepth.WithLabelValues(b.cfg.Endpoint).Set(float64(b.writeReadyQ.len()))
	}
}

// Submit admits m for delivery on this bridge, applying the configured
// admission policy while not yet ConnectedEstablished and the backpressure
// watermark once it is (spec.md 4.D).
func (b *Bridge) Submit(ctx context.Context, m *message.Message) error {
	if !m.HighPriority() {
		if err := b.waitForRoom(ctx); err != nil {
			return &rerror.TimeoutBeforeWrite{Endpoint: b.cfg.Endpoint}
		}
	}

	if b.State().Ready() {
		b.enqueueWrite(m)
		return nil
	}

	switch b.cfg.Admission {
	case BacklogAndRetry:
		if b.backlogQ.push(m) {
			return nil
		}
		return &rerror.ConnectionUnavailable{Endpoint: b.cfg.Endpoint}
	default:
		return &rerror.ConnectionUnavailable{Endpoint: b.cfg.Endpoint}
	}
}

// SubmitAsk pushes an ASKING control message and the redirected body onto
// WriteReady as one atomic batch, per spec.md 4.E's "no reordering between
// the two". Both bypass the backlog: ASK redirects only make sense once a
// bridge to the target endpoint exists and is connected.
func (b *Bridge) SubmitAsk(asking, body *message.Message) error {
	if !b.State().Ready() {
		return &rerror.ConnectionUnavailable{Endpoint: b.cfg.Endpoint}
	}
	_ = asking.Lifecycle.Transition(message.StateQueued)
	_ = body.Lifecycle.Transition(message.StateQueued)
	b.writeReadyQ.push(asking, body)
	return nil
}

func (b *Bridge) waitForRoom(ctx context.Context) error {
	for b.writeReadyQ.len() >= b.cfg.HighWatermark {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

func (b *Bridge) failInFlight(err error) {
	failure := &rerror.ConnectionFailure{
		FailureType: classifyFailure(err),
		Endpoint:    b.cfg.Endpoint,
		Role:        b.cfg.Role.String(),
		Underlying:  err,
	}
	for _, m := range b.inflight.drainAll() {
		m.Complete(resp.RawResult{}, failure)
	}
	for _, m := range b.writeReadyQ.popAll() {
		m.Complete(resp.RawResult{}, failure)
	}
}

func classifyFailure(err error) rerror.FailureType {
	if _, ok := err.(*resp.DecodeError); ok {
		return rerror.ProtocolFailure
	}
	if cf, ok := err.(*rerror.ConnectionFailure); ok {
		return cf.FailureType
	}
	return rerror.SocketClosed
}

func (b *Bridge) teardown(err error) {
	b.setState(StateDisconnecting)
	b.failInFlight(err)
	for _, m := range b.backlogQ.drain() {
		m.Complete(resp.RawResult{}, &rerror.ObjectDisposed{What: "bridge " + b.cfg.Endpoint})
	}
	b.setState(StateDisconnected)
}

// Close tears the bridge down. If allowPending is false, in-flight and
// queued messages are completed with ObjectDisposed rather than waiting for
// their replies.
func (b *Bridge) Close(allowPending bool) {
	b.closeOnce.Do(func() {
		close(b.closeCh)
	})
	b.wg.Wait()
	if !allowPending {
		b.teardown(&rerror.ObjectDisposed{What: "bridge " + b.cfg.Endpoint})
	}
}
