// Package pubsub implements the subscription table and fan-out worker pool
// spec.md 4.F describes: a channel/pattern key maps to an ordered list of
// handlers, reference-counted so the wire SUBSCRIBE/UNSUBSCRIBE commands
// are only issued on the first subscriber / last unsubscriber. Grounded on
// src/meshage.Node.messageHandler's dispatch loop (decode once, fan out to
// a user-visible channel) generalized to a worker pool so one slow handler
// cannot stall the bridge's read loop.
package pubsub

import (
	"sync"
)

// Kind distinguishes a literal channel from a glob pattern or a shard
// channel (SSUBSCRIBE), since each needs a different wire command and
// cannot collide in the table even if the byte sequences match.
type Kind int

const (
	KindChannel Kind = iota
	KindPattern
	KindShard
)

func (k Kind) String() string {
	switch k {
	case KindPattern:
		return "pattern"
	case KindShard:
		return "shard"
	default:
		return "channel"
	}
}

// Key identifies one subscription table entry.
type Key struct {
	Kind    Kind
	Channel string
}

// Handler receives a published message. Channel is the concrete channel the
// message arrived on (for a pattern subscription, this differs from the
// pattern itself); Payload is the message body.
type Handler func(channel string, payload []byte)

// HandlerToken identifies one registered Handler for Unsubscribe/removal.
type HandlerToken uint64

type entry struct {
	order   []HandlerToken
	byToken map[HandlerToken]Handler
}

// Table is the subscription table: Key -> ordered handler list, with a
// reference count per Key used to decide when to issue or retract the wire
// subscription.
type Table struct {
	mu      sync.Mutex
	entries map[Key]*entry
	nextTok HandlerToken
}

// NewTable returns an empty subscription table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]*entry)}
}

// Subscribe registers h under key, returning its token and whether this was
// the first subscriber for key (the caller issues the wire SUBSCRIBE only
// in that case, per spec.md 4.F).
func (t *Table) Subscribe(key Key, h Handler) (HandlerToken, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	first := !ok
	if !ok {
		e = &entry{byToken: make(map[HandlerToken]Handler)}
		t.entries[key] = e
	}
	t.nextTok++
	tok := t.nextTok
	e.order = append(e.order, tok)
	e.byToken[tok] = h
	return tok, first
}

// Unsubscribe removes tok from key's handler list, returning whether key
// has no handlers left (the caller issues the wire UNSUBSCRIBE only then).
func (t *Table) Unsubscribe(key Key, tok HandlerToken) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return true
	}
	delete(e.byToken, tok)
	for i, o := range e.order {
		if o == tok {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if len(e.order) == 0 {
		delete(t.entries, key)
		return true
	}
	return false
}

// RefCount reports the number of handlers currently registered for key.
func (t *Table) RefCount(key Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return len(e.order)
	}
	return 0
}

// HandlersFor returns key's handlers in insertion order (spec.md 8 "both
// handlers observe payload in subscription registration order").
func (t *Table) HandlersFor(key Key) []Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	out := make([]Handler, 0, len(e.order))
	for _, tok := range e.order {
		out = append(out, e.byToken[tok])
	}
	return out
}

// Patterns returns every currently registered pattern key, for matching an
// incoming `pmessage` against each.
func (t *Table) Patterns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for k := range t.entries {
		if k.Kind == KindPattern {
			out = append(out, k.Channel)
		}
	}
	return out
}
