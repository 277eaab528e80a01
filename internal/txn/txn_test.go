package txn_test

import (
	"context"
	"testing"

	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/internal/txn"
)

// scriptedSubmitter completes each submitted Message with the next reply in
// script, in submission order, mimicking one endpoint's FIFO bridge without
// any network I/O.
func scriptedSubmitter(t *testing.T, script []resp.RawResult) txn.Submitter {
	i := 0
	return func(ctx context.Context, m *message.Message) error {
		if i >= len(script) {
			t.Fatalf("submitter received more messages (%s) than scripted replies", m.Command.Name())
		}
		r := script[i]
		i++
		m.Complete(r, nil)
		return nil
	}
}

func TestTransactionConditionFailureAbortsBeforeMulti(t *testing.T) {
	cond := txn.Condition{
		Key:       []byte("balance"),
		Command:   message.CmdGet,
		Processor: respval.Bytes{},
		Predicate: func(v interface{}) bool {
			b, _ := v.([]byte)
			return string(b) == "100"
		},
	}
	script := []resp.RawResult{
		{Kind: resp.KindSimpleString, Str: "OK"},                               // WATCH
		{Kind: resp.KindBulkString, Bytes: []byte("50")},                        // GET balance
		{Kind: resp.KindSimpleString, Str: "OK"},                                // UNWATCH
	}
	submit := scriptedSubmitter(t, script)

	res, err := txn.Run(context.Background(), txn.Transaction{Conditions: []txn.Condition{cond}}, submit)
	if err != nil {
		t.Fatal(err)
	}
	if res.Executed {
		t.Fatal("transaction must not execute when a condition fails")
	}
	if len(res.Conditions) != 1 || res.Conditions[0].Satisfied {
		t.Fatalf("expected unsatisfied condition, got %+v", res.Conditions)
	}
}

func TestTransactionExecSuccess(t *testing.T) {
	cond := txn.Condition{
		Key:       []byte("balance"),
		Command:   message.CmdGet,
		Processor: respval.Bytes{},
		Predicate: func(v interface{}) bool {
			b, _ := v.([]byte)
			return string(b) == "100"
		},
	}
	body := txn.BodyCommand{
		Key:       []byte("balance"),
		Command:   message.CmdSet,
		Args:      [][]byte{[]byte("90")},
		Processor: respval.OKBool{},
	}
	script := []resp.RawResult{
		{Kind: resp.KindSimpleString, Str: "OK"},                         // WATCH
		{Kind: resp.KindBulkString, Bytes: []byte("100")},                 // GET balance
		{Kind: resp.KindSimpleString, Str: "OK"},                          // MULTI
		{Kind: resp.KindSimpleString, Str: "QUEUED"},                      // SET balance 90 (queued)
		{ // EXEC reply: one array element per queued command
			Kind: resp.KindArray,
			Children: []resp.RawResult{
				{Kind: resp.KindSimpleString, Str: "OK"},
			},
		},
	}
	submit := scriptedSubmitter(t, script)

	res, err := txn.Run(context.Background(), txn.Transaction{
		Conditions: []txn.Condition{cond},
		Body:       []txn.BodyCommand{body},
	}, submit)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Executed {
		t.Fatal("expected transaction to execute")
	}
	if len(res.BodyResults) != 1 || res.BodyResults[0] != true {
		t.Fatalf("expected [true], got %+v", res.BodyResults)
	}
}

func TestTransactionExecNilMeansWatchViolated(t *testing.T) {
	cond := txn.Condition{
		Key:       []byte("k"),
		Command:   message.CmdGet,
		Processor: respval.Bytes{},
		Predicate: func(interface{}) bool { return true },
	}
	body := txn.BodyCommand{Key: []byte("k"), Command: message.CmdSet, Args: [][]byte{[]byte("v")}, Processor: respval.OKBool{}}

	script := []resp.RawResult{
		{Kind: resp.KindSimpleString, Str: "OK"},          // WATCH
		{Kind: resp.KindBulkString, Bytes: []byte("v0")},  // GET k
		{Kind: resp.KindSimpleString, Str: "OK"},          // MULTI
		{Kind: resp.KindSimpleString, Str: "QUEUED"},      // SET k v
		{Kind: resp.KindNull},                             // EXEC -> nil: conflict
	}
	submit := scriptedSubmitter(t, script)

	res, err := txn.Run(context.Background(), txn.Transaction{
		Conditions: []txn.Condition{cond},
		Body:       []txn.BodyCommand{body},
	}, submit)
	if err != nil {
		t.Fatal(err)
	}
	if res.Executed {
		t.Fatal("EXEC returning nil must report Executed=false")
	}
}
