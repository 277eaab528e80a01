package resp_test

import (
	"testing"

	"github.com/sandia-minimega/redimux/internal/ringbuf"
	"github.com/sandia-minimega/redimux/internal/resp"
)

func decodeAll(t *testing.T, proto resp.Protocol, frames ...[]byte) []resp.RawResult {
	t.Helper()
	buf := ringbuf.New(64)
	dec := resp.NewDecoder(proto, buf)
	var out []resp.RawResult
	for _, f := range frames {
		buf.Write(f)
	}
	for {
		v, err := dec.Next()
		if err == resp.ErrNeedMore {
			break
		}
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		out = append(out, v)
	}
	return out
}

func TestEncodeCommand(t *testing.T) {
	got := resp.EncodeCommand([][]byte{[]byte("SET"), []byte("foo"), []byte("bar")})
	want := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDecodeSimpleTypes(t *testing.T) {
	res := decodeAll(t, resp.Protocol2, []byte("+OK\r\n-ERR bad\r\n:42\r\n$3\r\nfoo\r\n$-1\r\n*-1\r\n*0\r\n"))
	if len(res) != 7 {
		t.Fatalf("got %d results", len(res))
	}
	if res[0].Kind != resp.KindSimpleString || res[0].Str != "OK" {
		t.Fatalf("simple string: %+v", res[0])
	}
	if res[1].Kind != resp.KindError || res[1].Str != "ERR bad" {
		t.Fatalf("error: %+v", res[1])
	}
	if res[2].Kind != resp.KindInteger || res[2].Int != 42 {
		t.Fatalf("integer: %+v", res[2])
	}
	if res[3].Kind != resp.KindBulkString || string(res[3].Bytes) != "foo" {
		t.Fatalf("bulk: %+v", res[3])
	}
	if !res[4].IsNull() {
		t.Fatalf("nil bulk should be null: %+v", res[4])
	}
	if !res[5].IsNull() {
		t.Fatalf("array len -1 should be null: %+v", res[5])
	}
	// boundary: array of length 0 is a distinct empty collection, not null.
	if res[6].IsNull() || len(res[6].Children) != 0 {
		t.Fatalf("empty array should not be null: %+v", res[6])
	}
}

func TestBulkStringZeroLenNotNil(t *testing.T) {
	res := decodeAll(t, resp.Protocol2, []byte("$0\r\n\r\n"))
	if len(res) != 1 {
		t.Fatalf("got %d", len(res))
	}
	if res[0].IsNull() {
		t.Fatalf("empty bulk string must not equal nil bulk string")
	}
	if len(res[0].Bytes) != 0 {
		t.Fatalf("expected zero-length bytes, got %v", res[0].Bytes)
	}
}

func TestResp3Types(t *testing.T) {
	res := decodeAll(t, resp.Protocol3, []byte("%1\r\n$1\r\nk\r\n$1\r\nv\r\n,3.14\r\n#t\r\n_\r\n(12345678901234567890\r\n=15\r\ntxt:hello world\r\n"))
	if len(res) != 6 {
		t.Fatalf("got %d results: %+v", len(res), res)
	}
	if res[0].Kind != resp.KindMap || len(res[0].Children) != 2 {
		t.Fatalf("map: %+v", res[0])
	}
	if res[1].Kind != resp.KindDouble || res[1].Double != 3.14 {
		t.Fatalf("double: %+v", res[1])
	}
	if res[2].Kind != resp.KindBoolean || !res[2].Bool {
		t.Fatalf("boolean: %+v", res[2])
	}
	if res[3].Kind != resp.KindNull {
		t.Fatalf("null: %+v", res[3])
	}
	if res[4].Kind != resp.KindBigNumber || string(res[4].BigNumber) != "12345678901234567890" {
		t.Fatalf("bignumber: %+v", res[4])
	}
	if res[5].Kind != resp.KindVerbatimString || res[5].VerbatimFmt != resp.VerbatimText || string(res[5].VerbatimBytes) != "hello world" {
		t.Fatalf("verbatim: %+v", res[5])
	}
}

func TestResp3MarkerRejectedInResp2(t *testing.T) {
	buf := ringbuf.New(32)
	buf.Write([]byte(",3.14\r\n"))
	dec := resp.NewDecoder(resp.Protocol2, buf)
	if _, err := dec.Next(); err == nil {
		t.Fatal("expected hard decode error for RESP3 double frame in RESP2 mode")
	}
}

func TestResp2FramesAcceptedInResp3(t *testing.T) {
	buf := ringbuf.New(32)
	buf.Write([]byte("+OK\r\n"))
	dec := resp.NewDecoder(resp.Protocol3, buf)
	v, err := dec.Next()
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != resp.KindSimpleString {
		t.Fatalf("got %+v", v)
	}
}

func TestPushFrameType(t *testing.T) {
	res := decodeAll(t, resp.Protocol3, []byte(">3\r\n$7\r\nmessage\r\n$1\r\nc\r\n$2\r\nhi\r\n"))
	if len(res) != 1 || res[0].Kind != resp.KindPush {
		t.Fatalf("got %+v", res)
	}
	if res[0].PushType != "message" {
		t.Fatalf("push type: %q", res[0].PushType)
	}
}

func TestAttributePrecedesValueWithoutOccupyingSlot(t *testing.T) {
	var seen []resp.RawResult
	buf := ringbuf.New(64)
	dec := resp.NewDecoder(resp.Protocol3, buf)
	dec.AttributeHandler = func(pairs []resp.RawResult) {
		seen = append(seen, pairs...)
	}
	buf.Write([]byte("*2\r\n|1\r\n$2\r\nts\r\n:12345\r\n:1\r\n:2\r\n"))
	v, err := dec.Next()
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != resp.KindArray || len(v.Children) != 2 {
		t.Fatalf("attribute must not occupy a slot in parent length: %+v", v)
	}
	if v.Children[0].Int != 1 || v.Children[1].Int != 2 {
		t.Fatalf("children: %+v", v.Children)
	}
	if len(seen) != 2 || string(seen[0].Bytes) != "ts" || seen[1].Int != 12345 {
		t.Fatalf("attribute pairs not delivered: %+v", seen)
	}
}

func TestDecoderProgressSplitFeed(t *testing.T) {
	whole := decodeAll(t, resp.Protocol2, []byte("*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))

	buf := ringbuf.New(8)
	dec := resp.NewDecoder(resp.Protocol2, buf)
	frame := []byte("*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	var split []resp.RawResult
	for i := 0; i < len(frame); i++ {
		buf.Write(frame[i : i+1])
		for {
			v, err := dec.Next()
			if err == resp.ErrNeedMore {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			split = append(split, v)
		}
	}

	if len(whole) != len(split) {
		t.Fatalf("frame count mismatch: %d vs %d", len(whole), len(split))
	}
	if whole[0].Kind != split[0].Kind || len(whole[0].Children) != len(split[0].Children) {
		t.Fatalf("mismatch: %+v vs %+v", whole[0], split[0])
	}
}
