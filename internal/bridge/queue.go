package bridge

import (
	"container/list"
	"sync"

	"github.com/sandia-minimega/redimux/internal/message"
)

// backlog is a fixed-capacity FIFO holding messages submitted while the
// bridge is not yet ConnectedEstablished (spec.md 4.D, queue 1).
type backlog struct {
	mu   sync.Mutex
	cap  int
	msgs *list.List
}

func newBacklog(cap int) *backlog {
	return &backlog{cap: cap, msgs: list.New()}
}

// push admits m if there is room, returning false if the backlog is at
// capacity.
func (b *backlog) push(m *message.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs.Len() >= b.cap {
		return false
	}
	b.msgs.PushBack(m)
	return true
}

// drain removes and returns every queued message, in FIFO order, for
// replay once the bridge becomes ready.
func (b *backlog) drain() []*message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*message.Message, 0, b.msgs.Len())
	for e := b.msgs.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*message.Message))
	}
	b.msgs.Init()
	return out
}

func (b *backlog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgs.Len()
}

// inflightQueue is the FIFO of messages written to the socket and awaiting
// a reply (spec.md 4.D, queue 2). The read loop pops the head for each
// decoded frame on an interactive bridge; a subscription bridge never
// populates it.
type inflightQueue struct {
	mu   sync.Mutex
	msgs *list.List
}

func newInflightQueue() *inflightQueue {
	return &inflightQueue{msgs: list.New()}
}

func (q *inflightQueue) pushBack(m *message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs.PushBack(m)
}

// popFront removes and returns the oldest in-flight message, or nil if the
// queue is empty (an unsolicited frame, e.g. a stray push).
func (q *inflightQueue) popFront() *message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.msgs.Front()
	if e == nil {
		return nil
	}
	q.msgs.Remove(e)
	return e.Value.(*message.Message)
}

// drainAll removes and returns every in-flight message, used when tearing
// the bridge down so each can be completed with ConnectionFailure.
func (q *inflightQueue) drainAll() []*message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*message.Message, 0, q.msgs.Len())
	for e := q.msgs.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*message.Message))
	}
	q.msgs.Init()
	return out
}

func (q *inflightQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msgs.Len()
}

// writeReadyQueue is the single-consumer mailbox feeding the write loop
// (spec.md 4.D, queue 3). push admits a batch atomically so an ASK retry's
// `ASKING` command and its body can never be split by another caller's
// Submit (spec.md 4.E "atomically, no reordering between the two").
type writeReadyQueue struct {
	mu     sync.Mutex
	msgs   *list.List
	signal chan struct{}
}

func newWriteReadyQueue() *writeReadyQueue {
	return &writeReadyQueue{msgs: list.New(), signal: make(chan struct{}, 1)}
}

func (q *writeReadyQueue) push(ms ...*message.Message) {
	q.mu.Lock()
	for _, m := range ms {
		q.msgs.PushBack(m)
	}
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *writeReadyQueue) popAll() []*message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.msgs.Len() == 0 {
		return nil
	}
	out := make([]*message.Message, 0, q.msgs.Len())
	for e := q.msgs.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*message.Message))
	}
	q.msgs.Init()
	return out
}

func (q *writeReadyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msgs.Len()
}
