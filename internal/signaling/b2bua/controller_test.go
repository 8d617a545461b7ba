package b2bua

import (
	"context"
	"testing"

	"github.com/sebas/switchboard/internal/signaling/dialog"
)

// fakeLeg is a minimal Leg test double: it tracks state and fires
// OnStateChange synchronously, exactly like legImpl, without any SIP
// signaling underneath.
type fakeLeg struct {
	id        string
	dir       LegDirection
	state     LegState
	cause     TerminationCause
	info      *LegInfo
	callbacks []func(old, new LegState)
}

func newFakeLeg(id string, dir LegDirection) *fakeLeg {
	return &fakeLeg{id: id, dir: dir, state: LegStateCreated}
}

func (f *fakeLeg) ID() string                { return f.id }
func (f *fakeLeg) CallID() string            { return f.id }
func (f *fakeLeg) Direction() LegDirection    { return f.dir }
func (f *fakeLeg) GetState() LegState        { return f.state }
func (f *fakeLeg) GetTerminationCause() TerminationCause { return f.cause }
func (f *fakeLeg) WaitForState(ctx context.Context, target LegState) error { return nil }
func (f *fakeLeg) Dialog() *dialog.Dialog    { return nil }
func (f *fakeLeg) SessionID() string         { return "" }
func (f *fakeLeg) Context() context.Context  { return context.Background() }
func (f *fakeLeg) Info() *LegInfo            { return f.info }
func (f *fakeLeg) Answer(ctx context.Context) error { f.setState(LegStateAnswered); return nil }
func (f *fakeLeg) Destroy()                  {}

func (f *fakeLeg) Hangup(ctx context.Context, cause TerminationCause) error {
	f.cause = cause
	f.setState(LegStateDestroyed)
	return nil
}

func (f *fakeLeg) OnStateChange(fn func(old, new LegState)) func() {
	f.callbacks = append(f.callbacks, fn)
	return func() {}
}

func (f *fakeLeg) OnTerminated(fn func(cause TerminationCause)) {}

func (f *fakeLeg) setState(new LegState) {
	old := f.state
	f.state = new
	for _, cb := range f.callbacks {
		cb(old, new)
	}
}

func (f *fakeLeg) failWithCode(code int) {
	f.info = &LegInfo{SIPCode: code}
	f.setState(LegStateFailed)
}

func newTestController(huntstop map[int]bool) *Controller {
	return NewController(ControllerConfig{
		CID:            "call-1",
		Cli:            "1000",
		Cld:            "2000",
		HuntstopSCodes: huntstop,
	})
}

func TestControllerHappyPath(t *testing.T) {
	c := newTestController(nil)
	a := newFakeLeg("a", LegDirectionInbound)

	route := &Route{Rnum: 1, HostPort: "10.0.0.1:5060", CreditTime: -1, Expires: -1}
	c.TryA(a, []*Route{route})
	if c.State() != CCStateWaitRoute {
		t.Fatalf("expected WaitRoute, got %s", c.State())
	}

	if !c.RouteResolved(true, "") {
		t.Fatalf("RouteResolved should succeed")
	}
	if c.State() != CCStateARComplete {
		t.Fatalf("expected ARComplete, got %s", c.State())
	}

	o := newFakeLeg("o", LegDirectionOutbound)
	c.AttachOLeg(o)

	o.setState(LegStateAnswered)
	a.setState(LegStateAnswered)
	if c.State() != CCStateConnected {
		t.Fatalf("expected Connected, got %s", c.State())
	}

	a.Hangup(context.Background(), TerminationCauseNormal)
	if c.State() != CCStateDead && c.State() != CCStateDisconnecting {
		t.Fatalf("expected Disconnecting or Dead after A hangup, got %s", c.State())
	}
	o.Hangup(context.Background(), TerminationCauseBridgePeer)
	if c.State() != CCStateDead {
		t.Fatalf("expected Dead once both legs terminal, got %s", c.State())
	}
}

func TestControllerAuthFailureDisconnectsA(t *testing.T) {
	c := newTestController(nil)
	a := newFakeLeg("a", LegDirectionInbound)
	c.TryA(a, nil)

	if c.RouteResolved(false, "stale") {
		t.Fatalf("RouteResolved should report failure")
	}
	if c.State() != CCStateDead {
		t.Fatalf("expected Dead, got %s", c.State())
	}
	if a.GetState() != LegStateDestroyed {
		t.Fatalf("expected A leg destroyed")
	}
}

func TestControllerEmptyRouteListDisconnectsA(t *testing.T) {
	c := newTestController(nil)
	a := newFakeLeg("a", LegDirectionInbound)
	c.TryA(a, nil)

	if c.RouteResolved(true, "") {
		t.Fatalf("RouteResolved with no routes should fail")
	}
	if c.State() != CCStateDead {
		t.Fatalf("expected Dead, got %s", c.State())
	}
}

// TestControllerHuntOnFail exercises scenario 6: two routes, route 1 fails
// 503 (not in huntstop_scodes), route 2 attempted and fails 486 (in
// huntstop_scodes), 486 forwarded to A and the controller goes Dead.
func TestControllerHuntOnFail(t *testing.T) {
	c := newTestController(map[int]bool{486: true})
	a := newFakeLeg("a", LegDirectionInbound)

	r1 := &Route{Rnum: 1, HostPort: "10.0.0.1:5060", CreditTime: -1, Expires: -1}
	r2 := &Route{Rnum: 2, HostPort: "10.0.0.2:5060", CreditTime: -1, Expires: -1}
	c.TryA(a, []*Route{r1, r2})
	c.RouteResolved(true, "")

	var huntCount int
	c.SetHuntHandler(func(cc *Controller) {
		huntCount++
	})

	c.NextRoute() // the first originate attempt consumes route 1
	o1 := newFakeLeg("o1", LegDirectionOutbound)
	c.AttachOLeg(o1)
	o1.failWithCode(503)

	if huntCount != 1 {
		t.Fatalf("expected hunt to continue after 503, got huntCount=%d", huntCount)
	}
	if c.State() != CCStateARComplete {
		t.Fatalf("expected still ARComplete mid-hunt, got %s", c.State())
	}

	next := c.NextRoute()
	if next == nil || next.Rnum != 2 {
		t.Fatalf("expected route 2 next, got %#v", next)
	}

	o2 := newFakeLeg("o2", LegDirectionOutbound)
	c.AttachOLeg(o2)
	o2.failWithCode(486)

	if huntCount != 1 {
		t.Fatalf("486 is in huntstop_scodes, hunt must not continue, got huntCount=%d", huntCount)
	}
	if c.State() != CCStateDead {
		t.Fatalf("expected Dead after non-huntable failure, got %s", c.State())
	}
	if a.GetTerminationCause() != TerminationCauseRejected {
		t.Fatalf("expected A leg rejected, got cause=%v", a.GetTerminationCause())
	}
}
