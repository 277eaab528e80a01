package pubsub

import (
	"github.com/sandia-minimega/redimux/internal/resp"
)

// Dispatcher turns incoming push frames into Table lookups and handler
// invocations, offloaded onto a fixed worker pool so a slow application
// handler cannot stall the bridge's read loop (spec.md 4.F "message
// delivery must not block the connection's read loop"). Grounded on
// src/meshage.Node.messageHandler, which decodes once on the read
// goroutine and hands the decoded message to a separately-drained channel.
type Dispatcher struct {
	table *Table
	jobs  chan job
	done  chan struct{}
}

type job struct {
	key     Key
	channel string
	payload []byte
}

// NewDispatcher starts workers goroutines draining a bounded job queue
// against table.
func NewDispatcher(table *Table, workers, queueDepth int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	d := &Dispatcher{
		table: table,
		jobs:  make(chan job, queueDepth),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	for {
		select {
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			for _, h := range d.table.HandlersFor(j.key) {
				h(j.channel, j.payload)
			}
		case <-d.done:
			return
		}
	}
}

// Stop drains no further jobs and releases the worker pool. Already-queued
// jobs in flight are allowed to finish; queued-but-undelivered jobs are
// dropped.
func (d *Dispatcher) Stop() {
	close(d.done)
}

// HandlePush is the bridge's PushHandler: it classifies r by push type and
// enqueues delivery work, never calling application handlers inline.
//
// RESP2 has no push frame marker at all: a server speaking RESP2 (either
// because Config.WantRESP3 was never set, or HELLO 3 was rejected and the
// bridge fell back per spec.md 4.D step 2) sends subscription traffic as an
// ordinary multi-bulk array, indistinguishable on the wire from any other
// array reply except by its first element's literal tag
// ("message"/"pmessage"/"smessage"/the subscribe-count confirmations).
// Since every frame on a subscription-role bridge funnels through this
// handler regardless of protocol, KindArray frames tagged this way must be
// classified the same as a RESP3 KindPush frame or pub/sub fan-out silently
// never fires under the default (RESP2) configuration.
func (d *Dispatcher) HandlePush(r resp.RawResult) {
	kind, children := pushType(r)
	switch kind {
	case "message":
		if len(children) < 3 {
			return
		}
		ch := string(children[1].Bytes)
		d.enqueue(Key{Kind: KindChannel, Channel: ch}, ch, children[2].Bytes)

	case "pmessage":
		if len(children) < 4 {
			return
		}
		pattern := string(children[1].Bytes)
		ch := string(children[2].Bytes)
		d.enqueue(Key{Kind: KindPattern, Channel: pattern}, ch, children[3].Bytes)

	case "smessage":
		if len(children) < 3 {
			return
		}
		ch := string(children[1].Bytes)
		d.enqueue(Key{Kind: KindShard, Channel: ch}, ch, children[2].Bytes)

	default:
		// subscribe/unsubscribe/psubscribe/punsubscribe/ssubscribe/
		// sunsubscribe confirmations and any other out-of-band push carry
		// no payload delivery obligation.
	}
}

// pushType extracts the pub/sub message-type tag and child elements from r,
// whether r arrived as a RESP3 push frame (tag already lifted into
// PushType by the decoder) or a RESP2 array (tag is Children[0]).
func pushType(r resp.RawResult) (string, []resp.RawResult) {
	switch r.Kind {
	case resp.KindPush:
		return r.PushType, r.Children
	case resp.KindArray:
		if len(r.Children) == 0 || r.Children[0].Kind != resp.KindBulkString {
			return "", nil
		}
		return string(r.Children[0].Bytes), r.Children
	default:
		return "", nil
	}
}

func (d *Dispatcher) enqueue(key Key, channel string, payload []byte) {
	select {
	case d.jobs <- job{key: key, channel: channel, payload: payload}:
	case <-d.done:
	}
}
