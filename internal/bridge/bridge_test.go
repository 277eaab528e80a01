package bridge_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sandia-minimega/redimux/internal/bridge"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/respval"
)

// fakeServer accepts one connection and replies to each expected request
// with a scripted response, grounded on minitunnel_test.go's DummyServer.
type fakeServer struct {
	ln  net.Listener
	err chan error
}

func newFakeServer(t *testing.T) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return &fakeServer{ln: ln, err: make(chan error, 1)}
}

func (f *fakeServer) addr() string { return f.ln.Addr().String() }

func (f *fakeServer) serve(steps [][2]string) {
	go func() {
		conn, err := f.ln.Accept()
		if err != nil {
			f.err <- err
			return
		}
		defer conn.Close()

		for _, step := range steps {
			want, reply := step[0], step[1]
			buf := make([]byte, len(want))
			if _, err := io.ReadFull(conn, buf); err != nil {
				f.err <- err
				return
			}
			if string(buf) != want {
				f.err <- &mismatchError{want: want, got: string(buf)}
				return
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				f.err <- err
				return
			}
		}
		f.err <- nil
	}()
}

type mismatchError struct{ want, got string }

func (e *mismatchError) Error() string {
	return "bridge test: expected " + e.want + " got " + e.got
}

func TestBridgeSetGetRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve([][2]string{
		{"*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n", "+OK\r\n"},
		{"*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", "$3\r\nbar\r\n"},
	})

	b := bridge.New(bridge.Config{
		Endpoint:          srv.addr(),
		Role:              bridge.RoleInteractive,
		Admission:         bridge.BacklogAndRetry,
		HeartbeatInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Close(false)

	waitReady(t, b)

	set := message.New(message.CmdSet, -1, 0, []byte("foo"), [][]byte{[]byte("bar")}, respval.OKBool{})
	if err := b.Submit(ctx, set); err != nil {
		t.Fatal(err)
	}
	v, err := set.Future().Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != true {
		t.Fatalf("got %v", v)
	}

	get := message.New(message.CmdGet, -1, 0, []byte("foo"), nil, respval.Bytes{})
	if err := b.Submit(ctx, get); err != nil {
		t.Fatal(err)
	}
	v, err = get.Future().Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(v.([]byte)) != "bar" {
		t.Fatalf("got %v", v)
	}

	select {
	case err := <-srv.err:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("server goroutine did not finish")
	}
}

func TestBridgeFireAndForgetCompletesWithoutReply(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve([][2]string{
		{"*2\r\n$7\r\nPUBLISH\r\n$1\r\nc\r\n", ""},
	})
	// PUBLISH normally has 3 args; this test only exercises the
	// fire-and-forget write path, not command shape, so a 2-arg frame is
	// fine as long as client and server agree on the bytes.

	b := bridge.New(bridge.Config{
		Endpoint:          srv.addr(),
		Role:              bridge.RoleInteractive,
		Admission:         bridge.BacklogAndRetry,
		HeartbeatInterval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Close(false)
	waitReady(t, b)

	m := message.New(message.CmdPublish, -1, message.FlagFireAndForget, []byte("c"), nil, respval.Void{})
	if err := b.Submit(ctx, m); err != nil {
		t.Fatal(err)
	}
	v, err := m.Future().Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_ = v
}

func waitReady(t *testing.T, b *bridge.Bridge) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.State().Ready() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("bridge never became ready (state=%v)", b.State())
}
