package rmesh_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sandia-minimega/redimux/internal/bridge"
	"github.com/sandia-minimega/redimux/pkg/rmesh"
)

// fakeServer accepts one connection and replies to each expected request
// with a scripted response, grounded on internal/bridge's own test harness,
// itself grounded on minitunnel_test.go's DummyServer.
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

// serve accepts every incoming connection (an Endpoint dials one for its
// interactive bridge and a separate one for its subscription bridge; only
// one of them carries the scripted traffic in these tests) and runs steps
// against whichever connection's first bytes match the script. Connections
// that never send anything (the idle sibling bridge) just block on read,
// which is harmless for the lifetime of a test.
func (f *fakeServer) serve(steps [][2]string) {
	go func() {
		for {
			conn, err := f.ln.Accept()
			if err != nil {
				return
			}
			go f.drive(conn, steps)
		}
	}()
}

func (f *fakeServer) drive(conn net.Conn, steps [][2]string) {
	defer conn.Close()
	for i, step := range steps {
		want, reply := step[0], step[1]
		buf := make([]byte, len(want))
		if _, err := io.ReadFull(conn, buf); err != nil {
			if i == 0 {
				return // an idle sibling connection, not the scripted one
			}
			f.err <- err
			return
		}
		if string(buf) != want {
			if i == 0 {
				return
			}
			f.err <- &mismatchError{want: want, got: string(buf)}
			return
		}
		if reply != "" {
			if _, err := conn.Write([]byte(reply)); err != nil {
				f.err <- err
				return
			}
		}
	}
	f.err <- nil
}

type mismatchError struct{ want, got string }

func (e *mismatchError) Error() string {
	return "rmesh test: expected " + e.want + " got " + e.got
}

func standaloneConfig(addr string) rmesh.Config {
	return rmesh.Config{
		Topology:          rmesh.TopologyStandalone,
		Seeds:             []string{addr},
		Admission:         bridge.BacklogAndRetry,
		HeartbeatInterval: time.Hour,
		ReconfigInterval:  time.Hour,
	}
}

func TestConnectGetSetRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve([][2]string{
		{"*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n", "+OK\r\n"},
		{"*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", "$3\r\nbar\r\n"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	mux, err := rmesh.Connect(ctx, standaloneConfig(srv.addr()))
	if err != nil {
		t.Fatal(err)
	}
	defer mux.Close(false)

	db := mux.GetDatabase(0)
	if err := db.Set(ctx, []byte("foo"), []byte("bar")); err != nil {
		t.Fatal(err)
	}
	v, err := db.Get(ctx, []byte("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "bar" {
		t.Fatalf("got %q", v)
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

func TestConnectRejectsEmptySeeds(t *testing.T) {
	_, err := rmesh.Connect(context.Background(), rmesh.Config{Topology: rmesh.TopologyStandalone})
	if err == nil {
		t.Fatal("expected a ConfigurationError for empty Seeds")
	}
}

func TestSubscribeRefCountsWireCommand(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve([][2]string{
		{"*2\r\n$9\r\nSUBSCRIBE\r\n$4\r\nnews\r\n", ""},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	mux, err := rmesh.Connect(ctx, standaloneConfig(srv.addr()))
	if err != nil {
		t.Fatal(err)
	}
	defer mux.Close(false)

	sub := mux.GetSubscriber()
	tok1, err := sub.Subscribe(ctx, "news", func(string, []byte) {})
	if err != nil {
		t.Fatal(err)
	}
	// Second subscriber to the same channel must not issue a second
	// SUBSCRIBE: the scripted server only expects one.
	if _, err := sub.Subscribe(ctx, "news", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}
	_ = tok1

	select {
	case err := <-srv.err:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("server goroutine did not finish")
	}
}
