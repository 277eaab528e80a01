package rmesh

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/sandia-minimega/redimux/internal/endpoint"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/metrics"
	"github.com/sandia-minimega/redimux/internal/mlog"
	"github.com/sandia-minimega/redimux/internal/pubsub"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/internal/selector"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// Multiplexer is the caller-visible handle returned by Connect: the
// lifetime owner of every endpoint, the subscription table, and the
// reconfiguration task (spec.md 4.F).
type Multiplexer struct {
	cfg Config
	log *mlog.Facade

	ctx    context.Context
	cancel context.CancelFunc

	metrics *metrics.Set

	sel        *selector.Selector
	pubTable   *pubsub.Table
	dispatcher *pubsub.Dispatcher

	reconfig *reconfigTask
	sentinel *sentinelWatcher

	// scripts caches EVAL script bodies by their sha1 hex digest, so a
	// NOSCRIPT reply to EVALSHA can be recovered with SCRIPT LOAD + retry
	// (spec.md 7 "NOSCRIPT triggers automatic SCRIPT LOAD + retry").
	scriptsMu sync.Mutex
	scripts   map[string][]byte

	mu     sync.RWMutex
	closed bool
}

// Connect builds every endpoint from cfg.Seeds, starts their bridges, runs
// an initial topology probe, and returns a ready Multiplexer (spec.md 4.F
// "Connect(config) -> Multiplexer | ConnectionError").
func Connect(ctx context.Context, cfg Config) (*Multiplexer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mctx, cancel := context.WithCancel(ctx)

	m := &Multiplexer{
		cfg:     cfg,
		log:     cfg.Logger,
		ctx:     mctx,
		cancel:  cancel,
		metrics: metrics.New(cfg.MetricsPrefix),
		scripts: make(map[string][]byte),
	}

	if cfg.Registry != nil {
		m.metrics.MustRegister(cfg.Registry)
	}

	m.pubTable = pubsub.NewTable()
	m.dispatcher = pubsub.NewDispatcher(m.pubTable, cfg.PubSubWorkers, cfg.PubSubQueueSize)

	factory := func(addr string) *endpoint.Endpoint {
		e := endpoint.New(addr, cfg.bridgeConfig(), m.dispatcher.HandlePush, m.metrics)
		e.Start(mctx)
		return e
	}
	m.sel = selector.New(cfg.Topology, factory)
	m.sel.ConnectRetry = cfg.ConnectRetry

	for i, addr := range cfg.Seeds {
		m.sel.Endpoint(addr)
		if i == 0 {
			m.sel.SetPrimary(addr)
		}
	}

	m.reconfig = newReconfigTask(m)
	if err := m.reconfig.runSync(mctx); err != nil {
		cancel()
		return nil, err
	}
	m.reconfig.startPeriodic(mctx, cfg.ReconfigInterval)

	if cfg.Sentinel != nil {
		m.sentinel = newSentinelWatcher(m, *cfg.Sentinel)
		m.sentinel.Start(mctx)
	}

	return m, nil
}

// GetDatabase returns a lightweight handle bound to db index (spec.md 4.F).
func (m *Multiplexer) GetDatabase(index int) *Database {
	return &Database{mux: m, db: index}
}

// GetSubscriber returns the pub/sub handle.
func (m *Multiplexer) GetSubscriber() *Subscriber {
	return &Subscriber{mux: m}
}

// GetServer returns the endpoint view for addr, creating it if unseen.
func (m *Multiplexer) GetServer(addr string) *endpoint.Endpoint {
	return m.sel.Endpoint(addr)
}

// Execute routes m to the endpoint the server-selection strategy picks and
// carries out spec.md 7's propagation policy: MOVED/ASK/LOADING/TRYAGAIN/
// CLUSTERDOWN are recovered locally with retries bounded by cfg.ConnectRetry,
// NOSCRIPT triggers an automatic SCRIPT LOAD + retry, and anything else is
// surfaced as an error rather than a silently-nil success.
//
// The initial send happens once, before the loop; each later iteration
// submits exactly once, inside the branch (MOVED/ASK redirect or local
// retry) that triggered it — there is no top-of-loop resubmission, since a Message's future resolves at
// most once (spec.md 8) and the bridge's in-flight FIFO must see each
// Message pushed exactly once (spec.md 4.D).
func (mx *Multiplexer) Execute(ctx context.Context, msg *message.Message) (interface{}, error) {
	if mx.isClosed() {
		return nil, &rerror.ObjectDisposed{What: "Multiplexer"}
	}

	ep, err := mx.sel.Pick(msg.Key, msg.Flags)
	if err != nil {
		return nil, err
	}
	if err := ep.Submit(ctx, msg); err != nil {
		return nil, err
	}

	for {
		v, err := msg.Future().Wait(ctx)
		if err != nil {
			return nil, err
		}
		out, hasOutcome := msg.Outcome()
		if !hasOutcome {
			if msg.Command == message.CmdEval {
				mx.cacheScript(msg.Args)
			}
			return v, nil
		}

		switch out.Outcome {
		case respval.OutcomeNeedRedirect:
			target, askFirst, rerr := mx.sel.Redirect(out, msg.Attempt)
			if rerr != nil {
				return nil, rerr
			}
			retry := rebuild(msg)
			if askFirst {
				asking := message.NewControl(message.CmdAsking, respval.Void{})
				if err := target.Interactive.SubmitAsk(asking, retry); err != nil {
					return nil, err
				}
			} else if err := target.Submit(ctx, retry); err != nil {
				return nil, err
			}
			ep, msg = target, retry

		case respval.OutcomeNeedRetry:
			if msg.Attempt >= mx.cfg.ConnectRetry {
				return nil, out.AsError(ep.Addr, msg.Command.Name())
			}
			if out.FailKind == respval.ErrNoScript && msg.Command == message.CmdEvalSha {
				reloaded, rerr := mx.reloadScript(ctx, ep, msg)
				if rerr != nil {
					return nil, rerr
				}
				if !reloaded {
					return nil, out.AsError(ep.Addr, msg.Command.Name())
				}
			}
			retry := rebuild(msg)
			if err := ep.Submit(ctx, retry); err != nil {
				return nil, err
			}
			msg = retry

		default: // OutcomeFailed
			return nil, out.AsError(ep.Addr, msg.Command.Name())
		}
	}
}

// rebuild constructs the fresh Message a retry (redirect or local recovery)
// submits instead of reusing msg, whose future has already resolved to the
// non-Completed outcome driving this retry.
func rebuild(msg *message.Message) *message.Message {
	retry := message.New(msg.Command, msg.DB, msg.Flags, msg.Key, msg.Args, msg.Processor)
	retry.Attempt = msg.Attempt + 1
	return retry
}

// cacheScript remembers an EVAL call's script body under its sha1 digest so
// a later EVALSHA against the same body can recover from NOSCRIPT.
func (mx *Multiplexer) cacheScript(args [][]byte) {
	if len(args) == 0 {
		return
	}
	body := append([]byte(nil), args[0]...)
	sum := sha1.Sum(body)
	sha := hex.EncodeToString(sum[:])
	mx.scriptsMu.Lock()
	mx.scripts[sha] = body
	mx.scriptsMu.Unlock()
}

// reloadScript issues SCRIPT LOAD for the body cached under msg's EVALSHA
// digest. It reports false, nil when the digest is unknown locally (no
// cached EVAL ever ran for it), in which case NOSCRIPT cannot be recovered
// and must be surfaced as-is.
func (mx *Multiplexer) reloadScript(ctx context.Context, ep *endpoint.Endpoint, msg *message.Message) (bool, error) {
	if len(msg.Args) == 0 {
		return false, nil
	}
	sha := strings.ToLower(string(msg.Args[0]))
	mx.scriptsMu.Lock()
	body, ok := mx.scripts[sha]
	mx.scriptsMu.Unlock()
	if !ok {
		return false, nil
	}

	load := message.New(message.CmdScriptLoad, msg.DB, message.FlagHighPriority, nil, [][]byte{[]byte("LOAD"), body}, respval.Bytes{})
	if err := ep.Submit(ctx, load); err != nil {
		return false, err
	}
	if _, err := load.Future().Wait(ctx); err != nil {
		return false, err
	}
	if out, failed := load.Outcome(); failed {
		return false, out.AsError(ep.Addr, message.CmdScriptLoad.Name())
	}
	return true, nil
}

// Close tears down every endpoint and the reconfiguration/sentinel tasks
// (spec.md 5 "Resource release").
func (mx *Multiplexer) Close(allowPending bool) {
	mx.mu.Lock()
	if mx.closed {
		mx.mu.Unlock()
		return
	}
	mx.closed = true
	mx.mu.Unlock()

	mx.cancel()
	for _, e := range mx.sel.Endpoints() {
		e.Close(allowPending)
	}
	mx.dispatcher.Stop()
}

func (mx *Multiplexer) isClosed() bool {
	mx.mu.RLock()
	defer mx.mu.RUnlock()
	return mx.closed
}
