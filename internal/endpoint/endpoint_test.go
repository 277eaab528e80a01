package endpoint_test

import (
	"testing"

	"github.com/sandia-minimega/redimux/internal/endpoint"
)

func TestRoleAndTiebreakerRoundTrip(t *testing.T) {
	e := &endpoint.Endpoint{Addr: "127.0.0.1:6379"}
	e.SetRole(endpoint.RolePrimary)
	e.SetTiebreaker("run-id-abc")
	e.SetVersion("7.2.0")
	e.SetReplOffset(42)

	if e.Role() != endpoint.RolePrimary {
		t.Fatalf("got role %v", e.Role())
	}
	if e.Tiebreaker() != "run-id-abc" {
		t.Fatalf("got tiebreaker %q", e.Tiebreaker())
	}
	if e.Version() != "7.2.0" {
		t.Fatalf("got version %q", e.Version())
	}
	if e.ReplOffset() != 42 {
		t.Fatalf("got offset %d", e.ReplOffset())
	}
}

func TestServerRoleString(t *testing.T) {
	cases := map[endpoint.ServerRole]string{
		endpoint.RoleUnknown: "unknown",
		endpoint.RolePrimary: "primary",
		endpoint.RoleReplica: "replica",
	}
	for role, want := range cases {
		if got := role.String(); got != want {
			t.Fatalf("role %d: got %q want %q", role, got, want)
		}
	}
}
