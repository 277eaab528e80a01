// Package endpoint models one server endpoint: its pair of bridges
// (interactive and subscription) plus the role/version/feature metadata the
// selector needs to route traffic. Grounded on src/ron/relay.go's
// parent/child addressing and src/meshage's treatment of each peer as one
// client wrapping one conn, generalized here to two bridges per peer.
package endpoint

import (
	"context"
	"sync"

	"github.com/sandia-minimega/redimux/internal/bridge"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/metrics"
	"github.com/sandia-minimega/redimux/internal/mlog"
	"github.com/sandia-minimega/redimux/internal/resp"
)

// ServerRole classifies an endpoint's replication role, as reported by
// CLUSTER NODES / INFO replication (spec.md 4.D handshake step 7).
type ServerRole int

const (
	RoleUnknown ServerRole = iota
	RolePrimary
	RoleReplica
)

func (r ServerRole) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// Endpoint is one server address: a pair of bridges (interactive carries
// commands, subscription carries pub/sub) sharing connection settings, plus
// the metadata the selector uses to pick it (spec.md 4.E/4.F).
type Endpoint struct {
	Addr string

	Interactive  *bridge.Bridge
	Subscription *bridge.Bridge

	mu         sync.RWMutex
	role       ServerRole
	version    string
	tiebreaker string
	replOffset int64
}

// Config is the shared bridge configuration an endpoint's pair of bridges
// is built from; Role is overwritten per-bridge.
type Config = bridge.Config

// New constructs an Endpoint with both bridges configured from cfg. The
// subscription bridge never runs the SELECT step (pub/sub is
// database-agnostic) and carries no in-flight FIFO; its reads all go to
// pushHandler.
func New(addr string, cfg Config, pushHandler func(resp.RawResult), m *metrics.Set) *Endpoint {
	interactiveCfg := cfg
	interactiveCfg.Endpoint = addr
	interactiveCfg.Role = bridge.RoleInteractive
	interactiveCfg.Metrics = m
	if interactiveCfg.Logger == nil {
		interactiveCfg.Logger = mlog.Named("endpoint:" + addr + ":interactive")
	}

	subCfg := cfg
	subCfg.Endpoint = addr
	subCfg.Role = bridge.RoleSubscription
	subCfg.DB = 0
	subCfg.Metrics = m
	if subCfg.Logger == nil {
		subCfg.Logger = mlog.Named("endpoint:" + addr + ":subscription")
	}

	e := &Endpoint{
		Addr:         addr,
		Interactive:  bridge.New(interactiveCfg),
		Subscription: bridge.New(subCfg),
	}
	e.Interactive.PushHandler = pushHandler
	e.Subscription.PushHandler = pushHandler
	return e
}

// Start launches both bridges' connection-management tasks.
func (e *Endpoint) Start(ctx context.Context) {
	e.Interactive.Start(ctx)
	e.Subscription.Start(ctx)
}

// Close tears both bridges down.
func (e *Endpoint) Close(allowPending bool) {
	e.Interactive.Close(allowPending)
	e.Subscription.Close(allowPending)
}

// Ready reports whether the interactive bridge can accept traffic right
// now; callers that need pub/sub readiness check Subscription directly.
func (e *Endpoint) Ready() bool { return e.Interactive.State().Ready() }

// Submit routes m to the interactive bridge.
func (e *Endpoint) Submit(ctx context.Context, m *message.Message) error {
	return e.Interactive.Submit(ctx, m)
}

// Role returns the endpoint's last-known replication role.
func (e *Endpoint) Role() ServerRole {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role
}

// SetRole updates the endpoint's replication role, as learned from a
// CLUSTER NODES/INFO replication probe or a sentinel event.
func (e *Endpoint) SetRole(r ServerRole) {
	e.mu.Lock()
	e.role = r
	e.mu.Unlock()
}

// Version returns the server version string reported by HELLO/INFO, used
// to decide server-version-gated behaviors (e.g. WRONGPASS message format).
func (e *Endpoint) Version() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

func (e *Endpoint) SetVersion(v string) {
	e.mu.Lock()
	e.version = v
	e.mu.Unlock()
}

// Tiebreaker returns the identity value this client wrote during
// configuration to assert primary identity (spec.md 9 open question): used
// only to disambiguate multiple candidates claiming to be primary, never
// enforced against an externally managed failover.
func (e *Endpoint) Tiebreaker() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tiebreaker
}

func (e *Endpoint) SetTiebreaker(v string) {
	e.mu.Lock()
	e.tiebreaker = v
	e.mu.Unlock()
}

// ReplOffset returns the last-known replication offset. It is recorded
// only; replica selection does not consult it.
func (e *Endpoint) ReplOffset() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.replOffset
}

func (e *Endpoint) SetReplOffset(v int64) {
	e.mu.Lock()
	e.replOffset = v
	e.mu.Unlock()
}
