// Package txn implements the optimistic WATCH/MULTI/EXEC transaction
// coordinator (spec.md 4.E "Transactions (optimistic)"). It runs entirely
// client-side protocol orchestration over one endpoint's Submit function;
// the atomicity guarantee comes from the server's MULTI/EXEC, not from
// anything this package does concurrently. Grounded on src/ron's
// request/response-over-one-connection pattern (heartbeat.go issues a
// command and blocks on its reply before issuing the next), generalized
// here to a fixed WATCH -> probe -> MULTI -> body -> EXEC sequence.
package txn

import (
	"context"

	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// Condition is a read check paired with an expected-result predicate,
// evaluated before MULTI is ever sent (spec.md 4.E).
type Condition struct {
	Key       []byte
	Command   message.Command
	Args      [][]byte
	Processor respval.Processor
	Predicate func(value interface{}) bool
}

// ConditionOutcome records whether one Condition held.
type ConditionOutcome struct {
	Condition Condition
	Value     interface{}
	Satisfied bool
}

// BodyCommand is one command to run inside MULTI/EXEC once every Condition
// has been confirmed.
type BodyCommand struct {
	Key       []byte
	Command   message.Command
	Args      [][]byte
	Processor respval.Processor
}

// Transaction is the full WATCH set plus the MULTI body.
type Transaction struct {
	Conditions []Condition
	Body       []BodyCommand
}

// Result is the outcome of running a Transaction.
type Result struct {
	// Executed is true only if EXEC ran and returned a non-nil array
	// (spec.md 4.E step 4).
	Executed bool

	Conditions []ConditionOutcome

	// BodyResults holds one element per BodyCommand, decoded with its own
	// Processor, populated only when Executed is true.
	BodyResults []interface{}
}

// Submitter sends m to the one endpoint this transaction runs against and
// blocks until its reply resolves; the caller (the multiplexer) supplies
// this bound to the correct bridge, already validated as a single endpoint
// and a single slot (spec.md 4.E "All commands in a transaction's body MUST
// map to the same server endpoint").
type Submitter func(ctx context.Context, m *message.Message) error

// Run executes t: WATCH every condition key, probe each condition, and
// either abort locally or run MULTI/body/EXEC (spec.md 4.E execution plan).
func Run(ctx context.Context, t Transaction, submit Submitter) (*Result, error) {
	keys := watchKeys(t.Conditions)
	if len(keys) > 0 {
		if err := sendSimple(ctx, submit, message.CmdWatch, keys[0], keys[1:], respval.Void{}); err != nil {
			return nil, err
		}
	}

	outcomes := make([]ConditionOutcome, len(t.Conditions))
	allSatisfied := true
	for i, c := range t.Conditions {
		v, err := sendAndDecode(ctx, submit, c.Command, c.Key, c.Args, c.Processor)
		if err != nil {
			return nil, err
		}
		satisfied := c.Predicate == nil || c.Predicate(v)
		outcomes[i] = ConditionOutcome{Condition: c, Value: v, Satisfied: satisfied}
		if !satisfied {
			allSatisfied = false
		}
	}

	if !allSatisfied {
		if len(keys) > 0 {
			_ = sendSimple(ctx, submit, message.CmdUnwatch, nil, nil, respval.Void{})
		}
		return &Result{Executed: false, Conditions: outcomes}, nil
	}

	if err := sendSimple(ctx, submit, message.CmdMulti, nil, nil, respval.Void{}); err != nil {
		return nil, err
	}

	for _, b := range t.Body {
		if err := sendSimple(ctx, submit, b.Command, b.Key, b.Args, queuedAck{}); err != nil {
			return nil, err
		}
	}

	execProc := execResult{procs: bodyProcessors(t.Body)}
	m := message.New(message.CmdExec, -1, message.FlagHighPriority, nil, nil, execProc)
	if err := submit(ctx, m); err != nil {
		return nil, err
	}
	v, err := m.Future().Wait(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return &Result{Executed: false, Conditions: outcomes}, nil
	}
	return &Result{Executed: true, Conditions: outcomes, BodyResults: v.([]interface{})}, nil
}

func bodyProcessors(body []BodyCommand) []respval.Processor {
	out := make([]respval.Processor, len(body))
	for i, b := range body {
		out[i] = b.Processor
	}
	return out
}

func watchKeys(conds []Condition) [][]byte {
	seen := map[string]bool{}
	var out [][]byte
	for _, c := range conds {
		if c.Key == nil || seen[string(c.Key)] {
			continue
		}
		seen[string(c.Key)] = true
		out = append(out, c.Key)
	}
	return out
}

func sendSimple(ctx context.Context, submit Submitter, cmd message.Command, key []byte, args [][]byte, proc respval.Processor) error {
	_, err := sendAndDecode(ctx, submit, cmd, key, args, proc)
	return err
}

func sendAndDecode(ctx context.Context, submit Submitter, cmd message.Command, key []byte, args [][]byte, proc respval.Processor) (interface{}, error) {
	m := message.New(cmd, -1, message.FlagHighPriority, key, args, proc)
	if err := submit(ctx, m); err != nil {
		return nil, err
	}
	return m.Future().Wait(ctx)
}

// SameEndpoint validates that every condition and body key resolves to one
// endpoint address via pick, rejecting the transaction locally otherwise
// (spec.md 4.E "mixed-slot or mixed-endpoint body is rejected locally").
func SameEndpoint(t Transaction, pick func(key []byte) (string, error)) error {
	seen := map[string]bool{}
	var addrs []string
	check := func(key []byte) error {
		if key == nil {
			return nil
		}
		addr, err := pick(key)
		if err != nil {
			return err
		}
		if !seen[addr] {
			seen[addr] = true
			addrs = append(addrs, addr)
		}
		return nil
	}
	for _, c := range t.Conditions {
		if err := check(c.Key); err != nil {
			return err
		}
	}
	for _, b := range t.Body {
		if err := check(b.Key); err != nil {
			return err
		}
	}
	if len(addrs) > 1 {
		return &rerror.MultiKeyOnDifferentServers{Endpoints: addrs}
	}
	return nil
}

// queuedAck accepts the "+QUEUED" simple string every body command receives
// once MULTI is active, failing on anything else (e.g. an immediate syntax
// error that EXEC would otherwise surface as a discarded transaction).
type queuedAck struct{}

func (queuedAck) TryProcess(r resp.RawResult) respval.Result {
	if r.Kind == resp.KindError {
		return respval.Result{Outcome: respval.OutcomeFailed, FailKind: respval.ErrGeneric, ServerMessage: r.Str}
	}
	if r.Kind == resp.KindSimpleString && r.Str == "QUEUED" {
		return respval.Result{Outcome: respval.OutcomeCompleted, Value: nil}
	}
	return respval.Result{Outcome: respval.OutcomeFailed, FailKind: respval.ErrGeneric, ServerMessage: "expected +QUEUED"}
}

// execResult decodes EXEC's reply: nil means the watch was violated
// (spec.md 4.E step 4); otherwise an array with one element per queued
// command, each decoded with that command's own Processor.
type execResult struct {
	procs []respval.Processor
}

func (e execResult) TryProcess(r resp.RawResult) respval.Result {
	if r.Kind == resp.KindError {
		return respval.Result{Outcome: respval.OutcomeFailed, FailKind: respval.ErrGeneric, ServerMessage: r.Str}
	}
	if r.IsNull() {
		return respval.Result{Outcome: respval.OutcomeCompleted, Value: nil}
	}
	out := make([]interface{}, len(r.Children))
	for i, c := range r.Children {
		if i >= len(e.procs) || e.procs[i] == nil {
			out[i] = c
			continue
		}
		sub := e.procs[i].TryProcess(c)
		if sub.Outcome == respval.OutcomeCompleted {
			out[i] = sub.Value
		} else {
			out[i] = sub.AsError("", "")
		}
	}
	return respval.Result{Outcome: respval.OutcomeCompleted, Value: out}
}
