package b2bua

import (
	"testing"

	"github.com/sebas/switchboard/internal/signaling/radius"
)

func TestSkippable(t *testing.T) {
	cases := []struct {
		r    Route
		want bool
	}{
		{Route{CreditTime: 0, Expires: -1}, true},
		{Route{CreditTime: -1, Expires: 0}, true},
		{Route{CreditTime: -1, Expires: -1}, false},
		{Route{CreditTime: 60, Expires: 60}, false},
	}
	for _, c := range cases {
		if got := c.r.Skippable(); got != c.want {
			t.Errorf("Skippable(%+v) = %v, want %v", c.r, got, c.want)
		}
	}
}

func TestRoutesFromStatic(t *testing.T) {
	routes := RoutesFromStatic("10.0.0.1:5060", "2000", "1000")
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	r := routes[0]
	if r.HostPort != "10.0.0.1:5060" || r.Cld != "2000" || r.Cli != "1000" {
		t.Fatalf("unexpected route: %+v", r)
	}
	if r.Skippable() {
		t.Fatalf("static route with unlimited credit must not be skippable")
	}
}

func TestRoutesFromStaticEmpty(t *testing.T) {
	if routes := RoutesFromStatic("", "2000", "1000"); routes != nil {
		t.Fatalf("expected nil routes for empty static route, got %v", routes)
	}
}

func TestRoutesFromIVRParsesHuntList(t *testing.T) {
	ivr := radius.ParsedIVR{
		Routing:    "10.0.0.1:5060,10.0.0.2:5060",
		CreditTime: 3600,
	}
	routes := RoutesFromIVR(ivr, "2000", "1000")
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Rnum != 1 || routes[1].Rnum != 2 {
		t.Fatalf("expected sequential rnum, got %d, %d", routes[0].Rnum, routes[1].Rnum)
	}
	if routes[0].CreditTime != 3600 {
		t.Fatalf("expected shared credit time, got %d", routes[0].CreditTime)
	}
}

func TestRoutesFromIVRCLIOverride(t *testing.T) {
	ivr := radius.ParsedIVR{Routing: "10.0.0.1:5060", CreditTime: 60, CLI: "5551234"}
	routes := RoutesFromIVR(ivr, "2000", "1000")
	if len(routes) != 1 || routes[0].Cli != "5551234" {
		t.Fatalf("expected CLI override applied, got %+v", routes)
	}
}

func TestRoutesFromIVRZeroCreditSkipsAll(t *testing.T) {
	ivr := radius.ParsedIVR{Routing: "10.0.0.1:5060,10.0.0.2:5060", CreditTime: 0}
	routes := RoutesFromIVR(ivr, "2000", "1000")
	if len(routes) != 0 {
		t.Fatalf("expected all routes skipped on credit_time=0, got %d", len(routes))
	}
}
