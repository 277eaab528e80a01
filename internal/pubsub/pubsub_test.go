package pubsub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sandia-minimega/redimux/internal/pubsub"
	"github.com/sandia-minimega/redimux/internal/resp"
)

func TestSubscribeUnsubscribeRefCounting(t *testing.T) {
	tbl := pubsub.NewTable()
	key := pubsub.Key{Kind: pubsub.KindChannel, Channel: "news"}

	tok1, first1 := tbl.Subscribe(key, func(string, []byte) {})
	if !first1 {
		t.Fatal("first subscriber must report first=true")
	}
	_, first2 := tbl.Subscribe(key, func(string, []byte) {})
	if first2 {
		t.Fatal("second subscriber must report first=false")
	}
	if tbl.RefCount(key) != 2 {
		t.Fatalf("refcount = %d, want 2", tbl.RefCount(key))
	}

	last := tbl.Unsubscribe(key, tok1)
	if last {
		t.Fatal("removing one of two handlers must not report last=true")
	}
	if tbl.RefCount(key) != 1 {
		t.Fatalf("refcount = %d, want 1", tbl.RefCount(key))
	}
}

func TestHandlersFiredInRegistrationOrder(t *testing.T) {
	tbl := pubsub.NewTable()
	key := pubsub.Key{Kind: pubsub.KindChannel, Channel: "news"}

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		tbl.Subscribe(key, func(string, []byte) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	for _, h := range tbl.HandlersFor(key) {
		h("news", nil)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("handlers fired out of order: %v", order)
	}
}

func TestDispatcherDeliversMessage(t *testing.T) {
	tbl := pubsub.NewTable()
	key := pubsub.Key{Kind: pubsub.KindChannel, Channel: "news"}

	delivered := make(chan string, 1)
	tbl.Subscribe(key, func(ch string, payload []byte) {
		delivered <- ch + ":" + string(payload)
	})

	d := pubsub.NewDispatcher(tbl, 2, 8)
	defer d.Stop()

	d.HandlePush(resp.RawResult{
		Kind:     resp.KindPush,
		PushType: "message",
		Children: []resp.RawResult{
			{Kind: resp.KindBulkString, Bytes: []byte("message")},
			{Kind: resp.KindBulkString, Bytes: []byte("news")},
			{Kind: resp.KindBulkString, Bytes: []byte("hello")},
		},
	})

	select {
	case got := <-delivered:
		if got != "news:hello" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}

func TestDispatcherDeliversMessageOverRESP2Array(t *testing.T) {
	tbl := pubsub.NewTable()
	key := pubsub.Key{Kind: pubsub.KindChannel, Channel: "news"}

	delivered := make(chan string, 1)
	tbl.Subscribe(key, func(ch string, payload []byte) {
		delivered <- ch + ":" + string(payload)
	})

	d := pubsub.NewDispatcher(tbl, 2, 8)
	defer d.Stop()

	// RESP2 carries no push frame marker: a "message" reply on the
	// subscription bridge decodes as a plain KindArray, not KindPush.
	d.HandlePush(resp.RawResult{
		Kind: resp.KindArray,
		Children: []resp.RawResult{
			{Kind: resp.KindBulkString, Bytes: []byte("message")},
			{Kind: resp.KindBulkString, Bytes: []byte("news")},
			{Kind: resp.KindBulkString, Bytes: []byte("hello")},
		},
	})

	select {
	case got := <-delivered:
		if got != "news:hello" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched RESP2 message")
	}
}

func TestDispatcherDeliversPatternMessage(t *testing.T) {
	tbl := pubsub.NewTable()
	key := pubsub.Key{Kind: pubsub.KindPattern, Channel: "news.*"}

	delivered := make(chan string, 1)
	tbl.Subscribe(key, func(ch string, payload []byte) {
		delivered <- ch + ":" + string(payload)
	})

	d := pubsub.NewDispatcher(tbl, 1, 4)
	defer d.Stop()

	d.HandlePush(resp.RawResult{
		Kind:     resp.KindPush,
		PushType: "pmessage",
		Children: []resp.RawResult{
			{Kind: resp.KindBulkString, Bytes: []byte("pmessage")},
			{Kind: resp.KindBulkString, Bytes: []byte("news.*")},
			{Kind: resp.KindBulkString, Bytes: []byte("news.sports")},
			{Kind: resp.KindBulkString, Bytes: []byte("goal")},
		},
	})

	select {
	case got := <-delivered:
		if got != "news.sports:goal" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched pattern message")
	}
}
