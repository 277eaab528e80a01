package respval_test

import (
	"testing"

	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/internal/respval"
)

func TestOKBool(t *testing.T) {
	p := respval.OKBool{}
	r := p.TryProcess(resp.RawResult{Kind: resp.KindSimpleString, Str: "OK"})
	if r.Outcome != respval.OutcomeCompleted || r.Value != true {
		t.Fatalf("got %+v", r)
	}
}

func TestMovedRedirect(t *testing.T) {
	p := respval.Void{}
	r := p.TryProcess(resp.RawResult{Kind: resp.KindError, Str: "MOVED 16287 host2:6380"})
	if r.Outcome != respval.OutcomeNeedRedirect || r.RedirectKind != respval.RedirectMoved {
		t.Fatalf("got %+v", r)
	}
	if r.RedirectSlot != 16287 || r.RedirectEndpoint != "host2:6380" {
		t.Fatalf("got %+v", r)
	}
}

func TestAskRedirect(t *testing.T) {
	p := respval.Int64{}
	r := p.TryProcess(resp.RawResult{Kind: resp.KindError, Str: "ASK 100 host3:6380"})
	if r.Outcome != respval.OutcomeNeedRedirect || r.RedirectKind != respval.RedirectAsk {
		t.Fatalf("got %+v", r)
	}
}

func TestCrossSlotFails(t *testing.T) {
	p := respval.Void{}
	r := p.TryProcess(resp.RawResult{Kind: resp.KindError, Str: "CROSSSLOT Keys in request don't hash to the same slot"})
	if r.Outcome != respval.OutcomeFailed || r.FailKind != respval.ErrCrossSlot {
		t.Fatalf("got %+v", r)
	}
}

func TestBytesDistinguishesNilFromEmpty(t *testing.T) {
	p := respval.Bytes{}

	nilResult := p.TryProcess(resp.RawResult{Kind: resp.KindBulkString, IsNilBulk: true})
	if nilResult.Value.([]byte) != nil {
		t.Fatalf("expected nil slice")
	}

	emptyResult := p.TryProcess(resp.RawResult{Kind: resp.KindBulkString, Bytes: []byte{}})
	if emptyResult.Value.([]byte) == nil {
		t.Fatalf("expected non-nil empty slice")
	}
}

func TestStringMapFromArray(t *testing.T) {
	p := respval.StringMap{}
	r := p.TryProcess(resp.RawResult{Kind: resp.KindArray, Children: []resp.RawResult{
		{Kind: resp.KindBulkString, Bytes: []byte("field1")},
		{Kind: resp.KindBulkString, Bytes: []byte("value1")},
	}})
	m := r.Value.(map[string][]byte)
	if string(m["field1"]) != "value1" {
		t.Fatalf("got %+v", m)
	}
}

func TestSortedSetWithScores(t *testing.T) {
	p := respval.SortedSetWithScores{}
	r := p.TryProcess(resp.RawResult{Kind: resp.KindArray, Children: []resp.RawResult{
		{Kind: resp.KindBulkString, Bytes: []byte("a")},
		{Kind: resp.KindBulkString, Bytes: []byte("1.5")},
	}})
	members := r.Value.([]respval.ScoredMember)
	if len(members) != 1 || string(members[0].Member) != "a" || members[0].Score != 1.5 {
		t.Fatalf("got %+v", members)
	}
}
