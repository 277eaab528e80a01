// Package selector implements the server-selection strategy (spec.md 4.E):
// hash-slot computation, topology-mode-aware endpoint selection, and
// MOVED/ASK redirect handling. Grounded on src/meshage's routing table
// (routes/mesh, an adjacency map rebuilt by union() on topology change) —
// the slot table here plays the same role, republished wholesale on every
// CLUSTER NODES probe instead of merged incrementally.
package selector

import (
	"strconv"
	"sync"

	"github.com/sandia-minimega/redimux/internal/endpoint"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// Mode is the topology this selector is routing for (spec.md 4.E).
type Mode int

const (
	ModeStandalone Mode = iota
	ModePrimaryReplica
	ModeCluster
)

func (m Mode) String() string {
	switch m {
	case ModePrimaryReplica:
		return "primary-replica"
	case ModeCluster:
		return "cluster"
	default:
		return "standalone"
	}
}

// EndpointFactory lazily creates and starts an Endpoint for an address the
// selector has not seen before (a MOVED redirect to an unknown node, or a
// cluster bootstrap probe target).
type EndpointFactory func(addr string) *endpoint.Endpoint

// Selector owns the endpoint table and, in cluster mode, the slot table.
type Selector struct {
	mode    Mode
	factory EndpointFactory

	mu         sync.RWMutex
	endpoints  map[string]*endpoint.Endpoint
	primary    string
	slotTable  [SlotCount]string // cluster mode only; "" = unknown
	generation uint64

	// ConnectRetry bounds MOVED/ASK retries per message (spec.md 4.E).
	ConnectRetry int
}

// New constructs a Selector in mode, using factory to materialize
// not-yet-known endpoints.
func New(mode Mode, factory EndpointFactory) *Selector {
	return &Selector{
		mode:         mode,
		factory:      factory,
		endpoints:    make(map[string]*endpoint.Endpoint),
		ConnectRetry: 3,
	}
}

// AddEndpoint registers an already-constructed endpoint, e.g. the
// statically configured seed nodes from Config.
func (s *Selector) AddEndpoint(e *endpoint.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[e.Addr] = e
}

// SetPrimary designates addr as the primary for standalone/primary-replica
// mode (spec.md 4.E "multiplexer picks primary by tiebreaker key value").
func (s *Selector) SetPrimary(addr string) {
	s.mu.Lock()
	s.primary = addr
	s.mu.Unlock()
}

func (s *Selector) endpointLocked(addr string) *endpoint.Endpoint {
	if e, ok := s.endpoints[addr]; ok {
		return e
	}
	e := s.factory(addr)
	s.endpoints[addr] = e
	return e
}

// Endpoint returns (creating if necessary) the endpoint for addr.
func (s *Selector) Endpoint(addr string) *endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpointLocked(addr)
}

// Endpoints returns every endpoint currently known, for reconfiguration
// sweeps that need to retire ones no longer present in topology.
func (s *Selector) Endpoints() []*endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		out = append(out, e)
	}
	return out
}

// UpdateSlot points slot at addr, creating the endpoint if unknown, and
// bumps the slot table generation counter (spec.md 4.E "updates the slot
// table to point at the indicated endpoint, creating it if unknown").
func (s *Selector) UpdateSlot(slot int, addr string) *endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotTable[slot] = addr
	s.generation++
	return s.endpointLocked(addr)
}

// ReplaceSlotTable installs a freshly probed CLUSTER NODES slot→endpoint
// mapping wholesale (spec.md 4.F "Reconfiguration ... updates endpoint
// roles, discovers new endpoints").
func (s *Selector) ReplaceSlotTable(table map[int]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotTable = [SlotCount]string{}
	for slot, addr := range table {
		if slot < 0 || slot >= SlotCount {
			continue
		}
		s.slotTable[slot] = addr
		s.endpointLocked(addr)
	}
	s.generation++
}

// Generation returns the slot table's monotonic version counter.
func (s *Selector) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Pick selects the endpoint a message with the given key and flags should
// be sent to (spec.md 4.E "Topology modes").
func (s *Selector) Pick(key []byte, flags message.Flags) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.mode {
	case ModeCluster:
		slot := Slot(key)
		addr := s.slotTable[slot]
		if addr == "" {
			// No known owner yet: bootstrap probe to any known master.
			for _, e := range s.endpoints {
				if e.Role() != endpoint.RoleReplica {
					return e, nil
				}
			}
			return nil, &rerror.ConnectionUnavailable{Endpoint: "cluster:unrouted"}
		}
		e, ok := s.endpoints[addr]
		if !ok {
			return nil, &rerror.ConnectionUnavailable{Endpoint: addr}
		}
		return s.pickReplicaOrPrimary(e, flags)

	case ModePrimaryReplica:
		if flags.Has(message.FlagDemandReplica) || flags.Has(message.FlagPreferReplica) {
			for _, e := range s.endpoints {
				if e.Addr != s.primary && e.Role() == endpoint.RoleReplica {
					return e, nil
				}
			}
			if flags.Has(message.FlagDemandReplica) {
				return nil, &rerror.ConnectionUnavailable{Endpoint: "no replica available"}
			}
		}
		if e, ok := s.endpoints[s.primary]; ok {
			return e, nil
		}
		return nil, &rerror.ConnectionUnavailable{Endpoint: "no primary configured"}

	default: // ModeStandalone
		if e, ok := s.endpoints[s.primary]; ok {
			return e, nil
		}
		for _, e := range s.endpoints {
			return e, nil
		}
		return nil, &rerror.ConnectionUnavailable{Endpoint: "no endpoint configured"}
	}
}

// pickReplicaOrPrimary returns the slot owner unchanged: a cluster shard's
// replica set is not modeled here (cluster mode routes by slot→endpoint
// only), so DemandReplica/PreferReplica have no effect in cluster mode.
func (s *Selector) pickReplicaOrPrimary(primary *endpoint.Endpoint, flags message.Flags) (*endpoint.Endpoint, error) {
	return primary, nil
}

// ValidateMultiKey requires every key to share one slot in cluster mode
// (spec.md 4.E "Multi-key operations"); a no-op outside cluster mode, where
// all keys necessarily share one endpoint.
func (s *Selector) ValidateMultiKey(command string, keys [][]byte) error {
	if s.mode != ModeCluster || len(keys) < 2 {
		return nil
	}
	first := Slot(keys[0])
	for _, k := range keys[1:] {
		if Slot(k) != first {
			strs := make([]string, len(keys))
			for i, k := range keys {
				strs[i] = string(k)
			}
			return &rerror.CrossSlot{Command: command, Keys: strs}
		}
	}
	return nil
}

// Redirect classifies a respval.Result carrying a MOVED/ASK outcome into
// the endpoint to retry against and whether ASKING must precede the retry.
// It also enforces ConnectRetry, returning an error once attempt has
// exhausted the bound (spec.md 4.E "retries the message at most
// ConnectRetry times; monotonic counter prevents loops").
func (s *Selector) Redirect(r respval.Result, attempt int) (target *endpoint.Endpoint, askFirst bool, err error) {
	if attempt >= s.ConnectRetry {
		kind := "MOVED"
		if r.RedirectKind == respval.RedirectAsk {
			kind = "ASK"
		}
		return nil, false, &rerror.ServerError{
			Kind:     rerror.ErrGeneric,
			Endpoint: r.RedirectEndpoint,
			Command:  "(redirect)",
			Message:  "exceeded ConnectRetry redirect bound; last redirect " + kind + " " + strconv.Itoa(r.RedirectSlot) + " " + r.RedirectEndpoint,
		}
	}

	switch r.RedirectKind {
	case respval.RedirectMoved:
		e := s.UpdateSlot(r.RedirectSlot, r.RedirectEndpoint)
		return e, false, nil
	case respval.RedirectAsk:
		e := s.Endpoint(r.RedirectEndpoint)
		return e, true, nil
	default:
		return nil, false, &rerror.ServerError{Kind: rerror.ErrGeneric, Message: "unrecognized redirect kind"}
	}
}
