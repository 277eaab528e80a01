package ringbuf_test

import (
	"math"
	"testing"

	"github.com/sandia-minimega/redimux/internal/ringbuf"
)

func TestConsumeLinePartial(t *testing.T) {
	b := ringbuf.New(8)
	b.Write([]byte("+OK\r"))

	if _, err := b.ConsumeLine(); err != ringbuf.ErrNeedMore {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}

	b.Write([]byte("\n"))
	line, err := b.ConsumeLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(line) != "+OK" {
		t.Fatalf("got %q", line)
	}
}

func TestConsumeLineSplitFeed(t *testing.T) {
	// decoding B in one shot must equal feeding L then R (spec.md "Decoder progress").
	whole := ringbuf.New(32)
	whole.Write([]byte("hello\r\nworld\r\n"))
	var wholeLines [][]byte
	for {
		l, err := whole.ConsumeLine()
		if err == ringbuf.ErrNeedMore {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		wholeLines = append(wholeLines, append([]byte(nil), l...))
	}

	split := ringbuf.New(32)
	split.Write([]byte("hello\r\nwor"))
	var splitLines [][]byte
	for {
		l, err := split.ConsumeLine()
		if err == ringbuf.ErrNeedMore {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		splitLines = append(splitLines, append([]byte(nil), l...))
	}
	split.Write([]byte("ld\r\n"))
	for {
		l, err := split.ConsumeLine()
		if err == ringbuf.ErrNeedMore {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		splitLines = append(splitLines, append([]byte(nil), l...))
	}

	if len(wholeLines) != len(splitLines) {
		t.Fatalf("line count mismatch: %d vs %d", len(wholeLines), len(splitLines))
	}
	for i := range wholeLines {
		if string(wholeLines[i]) != string(splitLines[i]) {
			t.Fatalf("line %d mismatch: %q vs %q", i, wholeLines[i], splitLines[i])
		}
	}
}

func TestConsumeN(t *testing.T) {
	b := ringbuf.New(8)
	b.Write([]byte("bar\r\n"))

	data, err := b.ConsumeN(3)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bar" {
		t.Fatalf("got %q", data)
	}
}

func TestConsumeNMissingTerminator(t *testing.T) {
	b := ringbuf.New(8)
	b.Write([]byte("barXX"))

	if _, err := b.ConsumeN(3); err != ringbuf.ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseDoubleSpecials(t *testing.T) {
	cases := map[string]float64{
		"inf":  math.Inf(1),
		"-inf": math.Inf(-1),
		"3.14": 3.14,
	}
	for in, want := range cases {
		got, err := ringbuf.ParseDouble([]byte(in))
		if err != nil {
			t.Fatalf("%v: %v", in, err)
		}
		if got != want {
			t.Fatalf("%v: got %v want %v", in, got, want)
		}
	}

	nan, err := ringbuf.ParseDouble([]byte("nan"))
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(nan) {
		t.Fatalf("expected NaN, got %v", nan)
	}
}
