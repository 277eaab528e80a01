package message_test

import (
	"context"
	"testing"

	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/respval"
)

func TestLifecycleAtMostOnceCompletion(t *testing.T) {
	lc := message.NewLifecycle()
	if err := lc.Transition(message.StateQueued); err != nil {
		t.Fatal(err)
	}
	if err := lc.Transition(message.StateWritten); err != nil {
		t.Fatal(err)
	}
	if err := lc.Transition(message.StateCompleted); err != nil {
		t.Fatal(err)
	}
	if err := lc.Transition(message.StateFailed); err == nil {
		t.Fatal("expected transition out of a terminal state to be rejected")
	}
}

func TestLifecycleIllegalTransition(t *testing.T) {
	lc := message.NewLifecycle()
	if err := lc.Transition(message.StateAwaitingReply); err == nil {
		t.Fatal("expected Created -> AwaitingReply to be rejected")
	}
}

func TestMessageCompleteDeliversValue(t *testing.T) {
	m := message.New(message.CmdGet, -1, 0, []byte("foo"), nil, respval.Bytes{})
	_ = m.Lifecycle.Transition(message.StateQueued)
	_ = m.Lifecycle.Transition(message.StateWritten)

	m.Complete(resp.RawResult{Kind: resp.KindBulkString, Bytes: []byte("bar")}, nil)

	v, err := m.Future().Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(v.([]byte)) != "bar" {
		t.Fatalf("got %v", v)
	}
	if m.Lifecycle.State() != message.StateCompleted {
		t.Fatalf("got state %v", m.Lifecycle.State())
	}
}

func TestMessageRedirectOutcome(t *testing.T) {
	m := message.New(message.CmdSet, -1, 0, []byte("{x}a"), [][]byte{[]byte("1")}, respval.OKBool{})
	_ = m.Lifecycle.Transition(message.StateQueued)
	_ = m.Lifecycle.Transition(message.StateWritten)

	m.Complete(resp.RawResult{Kind: resp.KindError, Str: "MOVED 16287 host2:6380"}, nil)

	out, ok := m.Outcome()
	if !ok || out.Outcome != respval.OutcomeNeedRedirect {
		t.Fatalf("expected redirect outcome, got %+v ok=%v", out, ok)
	}
}
