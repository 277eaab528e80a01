package message

import (
	"github.com/rs/xid"

	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/respval"
)

// Message is one in-flight unit of work: a command plus everything the
// bridge and multiplexer need to route it, retry it, and deliver its
// result. One Message is submitted to exactly one bridge, once; a MOVED/ASK
// redirect or retry submits a fresh Message copied from it with Attempt
// incremented, so the attempt count is carried across the whole journey.
type Message struct {
	// TraceID is a k-sortable id used only for log/metric correlation; it
	// plays no part in reply ordering, which is implicit in FIFO queue
	// position (spec.md 4.D).
	TraceID xid.ID

	Command Command
	DB      int // -1 = unselected
	Flags   Flags

	Key  []byte
	Args [][]byte

	Processor respval.Processor

	Attempt int

	Lifecycle *Lifecycle

	future *future
}

// New builds a Message ready for submission. db should be -1 to leave the
// connection's currently selected database untouched.
func New(cmd Command, db int, flags Flags, key []byte, args [][]byte, proc respval.Processor) *Message {
	return &Message{
		TraceID:   xid.New(),
		Command:   cmd,
		DB:        db,
		Flags:     flags,
		Key:       key,
		Args:      args,
		Processor: proc,
		Lifecycle: NewLifecycle(),
		future:    newFuture(),
	}
}

// NewControl builds a high-priority, DB-unscoped Message for the bridge's
// own use (handshake steps, heartbeat PING, ASKING) rather than a
// caller-submitted command.
func NewControl(cmd Command, proc respval.Processor, args ...[]byte) *Message {
	return New(cmd, -1, FlagHighPriority, nil, args, proc)
}

// FireAndForget reports whether the caller asked to discard the reply.
func (m *Message) FireAndForget() bool { return m.Flags.Has(FlagFireAndForget) }

// HighPriority reports whether this message should bypass backpressure
// watermarks (spec.md 4.D); commands in the internal high-priority set
// (PING, AUTH, HELLO, CLUSTER NODES, SUBSCRIBE, ...) are high-priority
// regardless of caller-set flags.
func (m *Message) HighPriority() bool {
	return m.Flags.Has(FlagHighPriority) || HintsFor(m.Command).HighPriority
}

// Frame renders the wire command: the command name token followed by Key
// (if non-empty) and Args, in that order.
func (m *Message) Frame() []byte {
	parts := make([][]byte, 0, 2+len(m.Args))
	parts = append(parts, []byte(m.Command.Name()))
	if len(m.Key) > 0 {
		parts = append(parts, m.Key)
	}
	parts = append(parts, m.Args...)
	return resp.EncodeCommand(parts)
}

// Future returns the caller-visible awaitable for this message's result.
func (m *Message) Future() Future { return m.future }

// Outcome returns the non-Completed respval.Result that resolved this
// message, if any: the server-selection strategy uses this to act on a
// MOVED/ASK redirect or bounded retry instead of surfacing a plain error to
// the caller.
func (m *Message) Outcome() (respval.Result, bool) { return m.future.Outcome() }

// Complete delivers r to the processor and resolves the future, or resolves
// it with err directly if err is non-nil (e.g. a connection failure that
// never reached the decoder). It transitions the lifecycle to Completed or
// Failed accordingly. Safe to call at most once; spec.md 8's "at-most-once
// completion" is enforced by Lifecycle.Transition rejecting a second call.
func (m *Message) Complete(r resp.RawResult, err error) {
	if err != nil {
		_ = m.Lifecycle.Transition(StateFailed)
		m.future.resolve(nil, err)
		return
	}

	out := m.Processor.TryProcess(r)
	switch out.Outcome {
	case respval.OutcomeCompleted:
		_ = m.Lifecycle.Transition(StateCompleted)
		m.future.resolve(out.Value, nil)
	default:
		_ = m.Lifecycle.Transition(StateFailed)
		m.future.resolveOutcome(out)
	}
}

// CompleteFireAndForget resolves m successfully without running a reply
// through Processor: a fire-and-forget message never enters the in-flight
// queue, so there is no reply to process (spec.md 4.D).
func (m *Message) CompleteFireAndForget() {
	_ = m.Lifecycle.Transition(StateCompleted)
	m.future.resolve(nil, nil)
}

// Cancel resolves the future as Cancelled without delivering any value.
func (m *Message) Cancel(reason error) {
	_ = m.Lifecycle.Transition(StateCancelled)
	m.future.resolve(nil, reason)
}
