package rmesh

import (
	"context"

	"github.com/sandia-minimega/redimux/internal/endpoint"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/metrics"
	"github.com/sandia-minimega/redimux/internal/pubsub"
	"github.com/sandia-minimega/redimux/internal/respval"
)

// sentinelWatcher is the small secondary multiplexer spec.md 4.E describes:
// it connects to the configured sentinel endpoints, subscribes to
// +switch-master/+odown, and nudges the data Multiplexer's reconfiguration
// task on event. It never carries application traffic.
type sentinelWatcher struct {
	mux *Multiplexer
	cfg SentinelConfig

	table      *pubsub.Table
	dispatcher *pubsub.Dispatcher
	endpoints  []*endpoint.Endpoint
}

func newSentinelWatcher(mux *Multiplexer, cfg SentinelConfig) *sentinelWatcher {
	table := pubsub.NewTable()
	return &sentinelWatcher{
		mux:        mux,
		cfg:        cfg,
		table:      table,
		dispatcher: pubsub.NewDispatcher(table, 1, 32),
	}
}

// Start connects to every sentinel endpoint and subscribes each one's
// subscription bridge to the failover event channels. An event on any one
// sentinel only ever triggers a quorum read (see pollQuorum), never a
// reconfiguration directly: a single sentinel's view of the topology is not
// trusted on its own.
func (w *sentinelWatcher) Start(ctx context.Context) {
	handler := func(channel string, payload []byte) {
		w.mux.log.Info("sentinel event on %s: %s", channel, string(payload))
		go w.pollQuorum(ctx)
	}

	for _, addr := range w.cfg.Endpoints {
		e := endpoint.New(addr, w.mux.cfg.bridgeConfig(), w.dispatcher.HandlePush, metrics.New(w.mux.cfg.MetricsPrefix+"_sentinel"))
		e.Start(ctx)
		w.endpoints = append(w.endpoints, e)

		for _, channel := range []string{"+switch-master", "+odown"} {
			w.table.Subscribe(pubsub.Key{Kind: pubsub.KindChannel, Channel: channel}, handler)
			// Every frame on a Subscription-role bridge is routed to
			// PushHandler, including the SUBSCRIBE confirmation itself, so
			// this command's own reply never reaches In-flight: it must be
			// fire-and-forget or it would wait forever (internal/bridge
			// readLoop).
			sub := message.New(message.CmdSubscribe, -1, message.FlagHighPriority|message.FlagFireAndForget, []byte(channel), nil, respval.Void{})
			_ = e.Subscription.Submit(ctx, sub)
		}
	}
}

// pollQuorum implements SPEC_FULL.md's "Sentinel quorum read": it issues
// SENTINEL get-master-addr-by-name <service> against every configured
// sentinel and only reconfigures the data Multiplexer once a strict
// majority report the same address, rather than trusting whichever
// sentinel happened to fire the event first.
func (w *sentinelWatcher) pollQuorum(ctx context.Context) {
	addr, ok := w.quorumMasterAddr(ctx)
	if !ok {
		w.mux.log.Warn("sentinel quorum not reached for %q, skipping reconfigure", w.cfg.MasterName)
		return
	}
	w.mux.log.Info("sentinel quorum agrees master is %s for %q", addr, w.cfg.MasterName)
	w.mux.reconfig.Trigger()
}

// quorumMasterAddr queries every sentinel endpoint and returns the address
// reported by a strict majority (more than half) of the configured
// sentinels; a sentinel that fails to answer counts against the quorum.
func (w *sentinelWatcher) quorumMasterAddr(ctx context.Context) (string, bool) {
	votes := make(map[string]int, len(w.endpoints))
	for _, e := range w.endpoints {
		addr, err := probeMasterAddr(ctx, e, w.cfg.MasterName)
		if err != nil || addr == "" {
			continue
		}
		votes[addr]++
	}

	need := len(w.endpoints)/2 + 1
	for addr, n := range votes {
		if n >= need {
			return addr, true
		}
	}
	return "", false
}

// probeMasterAddr issues SENTINEL get-master-addr-by-name <service> against
// one sentinel endpoint and renders the two-element [host, port] reply (or
// the null array a sentinel returns for an unrecognized service name) as a
// single "host:port" string.
func probeMasterAddr(ctx context.Context, e *endpoint.Endpoint, service string) (string, error) {
	args := [][]byte{[]byte("get-master-addr-by-name"), []byte(service)}
	m := message.New(message.CmdSentinel, -1, message.FlagHighPriority, nil, args, respval.BulkStringArray{})
	if err := e.Submit(ctx, m); err != nil {
		return "", err
	}
	v, err := m.Future().Wait(ctx)
	if err != nil {
		return "", err
	}
	if out, failed := m.Outcome(); failed {
		return "", out.AsError(e.Addr, message.CmdSentinel.Name())
	}
	parts, _ := v.([][]byte)
	if len(parts) != 2 || parts[0] == nil || parts[1] == nil {
		return "", nil
	}
	return string(parts[0]) + ":" + string(parts[1]), nil
}
