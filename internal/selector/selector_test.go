package selector_test

import (
	"testing"

	"github.com/sandia-minimega/redimux/internal/endpoint"
	"github.com/sandia-minimega/redimux/internal/respval"
	"github.com/sandia-minimega/redimux/internal/selector"
)

func TestHashSlotConsistencyWithTag(t *testing.T) {
	if selector.Slot([]byte("{user1000}.following")) != selector.Slot([]byte("{user1000}.followers")) {
		t.Fatal("keys sharing a hash tag must share a slot")
	}
	if selector.Slot([]byte("foo")) != selector.Slot([]byte("{foo}")) {
		t.Fatal("a full-key tag must hash the same as the bare key")
	}
}

func TestEmptyHashTagIgnored(t *testing.T) {
	if selector.Slot([]byte("{}foo")) != selector.Slot([]byte("{}foo")) {
		t.Fatal("sanity")
	}
	// "{}" is an empty tag: slot must be computed over the whole key, not
	// treat it as tag "".
	full := selector.Slot([]byte("{}foo"))
	bare := selector.Slot([]byte("foo")) // different key entirely, just checking it doesn't collapse to crc16("")
	if full == bare {
		t.Fatal("empty hash tag should not make {}foo hash the same as foo")
	}
}

func TestHashTagExtraction(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"{user1000}.following", "user1000"},
		{"foo", "foo"},
		{"{}foo", "{}foo"},
		{"{unterminated", "{unterminated"},
	}
	for _, c := range cases {
		got := string(selector.HashTag([]byte(c.key)))
		if got != c.want {
			t.Errorf("HashTag(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}

func TestValidateMultiKeyCrossSlot(t *testing.T) {
	s := selector.New(selector.ModeCluster, func(addr string) *endpoint.Endpoint {
		return &endpoint.Endpoint{Addr: addr}
	})
	err := s.ValidateMultiKey("MSET", [][]byte{[]byte("{a}1"), []byte("{b}2")})
	if err == nil {
		t.Fatal("expected CrossSlot error")
	}
	err = s.ValidateMultiKey("MSET", [][]byte{[]byte("{a}1"), []byte("{a}2")})
	if err != nil {
		t.Fatalf("keys sharing a tag should pass: %v", err)
	}
}

func TestRedirectMovedUpdatesSlotTable(t *testing.T) {
	created := map[string]bool{}
	s := selector.New(selector.ModeCluster, func(addr string) *endpoint.Endpoint {
		created[addr] = true
		return &endpoint.Endpoint{Addr: addr}
	})
	genBefore := s.Generation()

	r := respval.Result{RedirectKind: respval.RedirectMoved, RedirectSlot: 100, RedirectEndpoint: "host2:6380"}
	e, askFirst, err := s.Redirect(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if askFirst {
		t.Fatal("MOVED must not precede with ASKING")
	}
	if e.Addr != "host2:6380" {
		t.Fatalf("got %s", e.Addr)
	}
	if !created["host2:6380"] {
		t.Fatal("unknown redirect target must be created")
	}
	if s.Generation() <= genBefore {
		t.Fatal("slot table generation must advance")
	}
}

func TestRedirectBoundedByConnectRetry(t *testing.T) {
	s := selector.New(selector.ModeCluster, func(addr string) *endpoint.Endpoint {
		return &endpoint.Endpoint{Addr: addr}
	})
	r := respval.Result{RedirectKind: respval.RedirectAsk, RedirectSlot: 1, RedirectEndpoint: "host3:6380"}
	_, _, err := s.Redirect(r, s.ConnectRetry)
	if err == nil {
		t.Fatal("expected bounded retry to fail once attempt reaches ConnectRetry")
	}
}
