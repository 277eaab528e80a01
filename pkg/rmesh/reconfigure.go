package rmesh

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sandia-minimega/redimux/internal/endpoint"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/internal/selector"
)

// reconfigTask serializes topology reconfiguration onto a single goroutine
// with a "coalesce while running" flag: a trigger arriving while a run is
// already in flight is folded into one more run immediately after, rather
// than queuing up N redundant runs (spec.md 4.F "Reconfiguration ...
// Serialized on a single task with a coalesce-while-running flag").
type reconfigTask struct {
	mux *Multiplexer

	trigger chan struct{}
	running chan struct{} // closed when the task goroutine exits
}

func newReconfigTask(mux *Multiplexer) *reconfigTask {
	return &reconfigTask{
		mux:     mux,
		trigger: make(chan struct{}, 1),
		running: make(chan struct{}),
	}
}

// runSync performs one reconfiguration pass inline, used for the initial
// probe at Connect time so Connect can fail fast on an unreachable seed set.
func (t *reconfigTask) runSync(ctx context.Context) error {
	return t.mux.doReconfigure(ctx)
}

// Trigger requests a reconfiguration pass, coalescing with any pass already
// queued or running.
func (t *reconfigTask) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// startPeriodic launches the background loop that reconfigures on its own
// schedule in addition to explicit Trigger calls.
func (t *reconfigTask) startPeriodic(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(t.running)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = t.mux.doReconfigure(ctx)
			case <-t.trigger:
				_ = t.mux.doReconfigure(ctx)
			}
		}
	}()
}

// doReconfigure reads topology from any known endpoint and updates the
// selector's endpoint roles / slot table accordingly (spec.md 4.F
// "Reconfiguration"). Best-effort: a probe failure leaves the previous
// topology state in place rather than tearing anything down.
func (mx *Multiplexer) doReconfigure(ctx context.Context) error {
	switch mx.cfg.Topology {
	case selector.ModeCluster:
		return mx.reconfigureCluster(ctx)
	case selector.ModePrimaryReplica:
		return mx.reconfigurePrimaryReplica(ctx)
	default:
		return nil
	}
}

func (mx *Multiplexer) reconfigureCluster(ctx context.Context) error {
	eps := mx.sel.Endpoints()
	if len(eps) == 0 {
		return nil
	}
	var lastErr error
	for _, ep := range eps {
		nodes, err := probeClusterNodes(ctx, ep)
		if err != nil {
			lastErr = err
			continue
		}
		table := make(map[int]string)
		for _, n := range nodes {
			addr := stripClusterBusPort(n.Address)
			target := mx.sel.Endpoint(addr)
			if isMaster(n.Flags) {
				target.SetRole(endpoint.RolePrimary)
			} else if isSlave(n.Flags) {
				target.SetRole(endpoint.RoleReplica)
			}
			for _, slot := range n.Slots {
				for _, s := range expandSlotSpec(slot) {
					table[s] = addr
				}
			}
		}
		mx.sel.ReplaceSlotTable(table)
		return nil
	}
	return lastErr
}

func (mx *Multiplexer) reconfigurePrimaryReplica(ctx context.Context) error {
	eps := mx.sel.Endpoints()
	var lastErr error
	for _, ep := range eps {
		info, err := probeReplicationInfo(ctx, ep)
		if err != nil {
			lastErr = err
			continue
		}
		switch info["role"] {
		case "master":
			ep.SetRole(endpoint.RolePrimary)
			mx.sel.SetPrimary(ep.Addr)
		case "slave":
			ep.SetRole(endpoint.RoleReplica)
		}
		if off, err := strconv.ParseInt(info["master_repl_offset"], 10, 64); err == nil {
			ep.SetReplOffset(off)
		}
	}
	return lastErr
}

func probeClusterNodes(ctx context.Context, ep *endpoint.Endpoint) ([]respval.ClusterNode, error) {
	m := message.New(message.CmdClusterNodes, -1, message.FlagHighPriority, nil, [][]byte{[]byte("NODES")}, respval.ClusterNodes{})
	if err := ep.Submit(ctx, m); err != nil {
		return nil, err
	}
	v, err := m.Future().Wait(ctx)
	if err != nil {
		return nil, err
	}
	nodes, _ := v.([]respval.ClusterNode)
	return nodes, nil
}

func probeReplicationInfo(ctx context.Context, ep *endpoint.Endpoint) (map[string]string, error) {
	m := message.New(message.CmdInfo, -1, message.FlagHighPriority, nil, [][]byte{[]byte("replication")}, respval.Bytes{})
	if err := ep.Submit(ctx, m); err != nil {
		return nil, err
	}
	v, err := m.Future().Wait(ctx)
	if err != nil {
		return nil, err
	}
	raw, _ := v.([]byte)
	out := map[string]string{}
	for _, line := range strings.Split(string(raw), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

func isMaster(flags []string) bool {
	for _, f := range flags {
		if f == "master" {
			return true
		}
	}
	return false
}

func isSlave(flags []string) bool {
	for _, f := range flags {
		if f == "slave" || f == "replica" {
			return true
		}
	}
	return false
}

// stripClusterBusPort removes the optional "@busport" suffix CLUSTER NODES
// appends to each node's address.
func stripClusterBusPort(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// expandSlotSpec parses one CLUSTER NODES slot field: "5461" or "0-5460".
// Special importing/migrating markers ("[...]") are not claims of ownership
// and are skipped.
func expandSlotSpec(spec string) []int {
	if strings.HasPrefix(spec, "[") {
		return nil
	}
	lo, hi, ok := strings.Cut(spec, "-")
	a, err := strconv.Atoi(lo)
	if err != nil {
		return nil
	}
	if !ok {
		return []int{a}
	}
	b, err := strconv.Atoi(hi)
	if err != nil {
		return nil
	}
	out := make([]int, 0, b-a+1)
	for s := a; s <= b; s++ {
		out = append(out, s)
	}
	return out
}
