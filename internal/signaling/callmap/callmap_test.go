package callmap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/sebas/switchboard/internal/signaling/b2bua"
	"github.com/sebas/switchboard/internal/signaling/dialog"
)

// recordingAccounting is a minimal radius.Accounting test double that
// records the timestamp passed to Disconnect, so rewind's back-dating can
// be asserted without a real CDR store.
type recordingAccounting struct {
	disconnectedAt time.Time
}

func (r *recordingAccounting) Connect(at time.Time)    {}
func (r *recordingAccounting) Disconnect(at time.Time) { r.disconnectedAt = at }

// fakeLeg is a minimal b2bua.Leg test double: it tracks state and fires
// OnStateChange synchronously, mirroring the fake in the b2bua package's own
// controller_test.go without any SIP signaling underneath.
type fakeLeg struct {
	state     b2bua.LegState
	callbacks []func(old, new b2bua.LegState)
}

func newFakeLeg() *fakeLeg { return &fakeLeg{state: b2bua.LegStateCreated} }

func (f *fakeLeg) ID() string                                       { return "leg" }
func (f *fakeLeg) CallID() string                                   { return "leg" }
func (f *fakeLeg) Direction() b2bua.LegDirection                    { return b2bua.LegDirectionInbound }
func (f *fakeLeg) GetState() b2bua.LegState                         { return f.state }
func (f *fakeLeg) GetTerminationCause() b2bua.TerminationCause      { return b2bua.TerminationCauseNone }
func (f *fakeLeg) WaitForState(ctx context.Context, target b2bua.LegState) error { return nil }
func (f *fakeLeg) Dialog() *dialog.Dialog                           { return nil }
func (f *fakeLeg) SessionID() string                                { return "" }
func (f *fakeLeg) Context() context.Context                         { return context.Background() }
func (f *fakeLeg) Info() *b2bua.LegInfo                             { return nil }
func (f *fakeLeg) Answer(ctx context.Context) error                 { f.setState(b2bua.LegStateAnswered); return nil }
func (f *fakeLeg) Destroy()                                         {}

func (f *fakeLeg) Hangup(ctx context.Context, cause b2bua.TerminationCause) error {
	f.setState(b2bua.LegStateDestroyed)
	return nil
}

func (f *fakeLeg) OnStateChange(fn func(old, new b2bua.LegState)) func() {
	f.callbacks = append(f.callbacks, fn)
	return func() {}
}

func (f *fakeLeg) OnTerminated(fn func(cause b2bua.TerminationCause)) {}

func (f *fakeLeg) setState(new b2bua.LegState) {
	old := f.state
	f.state = new
	for _, cb := range f.callbacks {
		cb(old, new)
	}
}

func newTestController(m *CallMap, cid string) *b2bua.Controller {
	return m.NewController(cid, "1000", "2000", "Caller", "10.0.0.1", "10.0.0.1:5060")
}

func TestNewControllerRegistersAndDeregistersOnDead(t *testing.T) {
	m := New(nil, Config{})
	c := newTestController(m, "call-1")

	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if got := m.ByCallID("call-1"); got != c {
		t.Fatalf("ByCallID returned %v, want %v", got, c)
	}

	c.TryA(newFakeLeg(), nil)
	c.RouteResolved(false, "")

	if m.Len() != 0 {
		t.Fatalf("Len() after dead = %d, want 0", m.Len())
	}
	if got := m.ByCallID("call-1"); got != nil {
		t.Fatalf("ByCallID after dead = %v, want nil", got)
	}
}

func TestControllersSnapshotIsOrderedAndIndependent(t *testing.T) {
	m := New(nil, Config{})
	newTestController(m, "call-1")
	newTestController(m, "call-2")

	snap := m.Controllers()
	if len(snap) != 2 || snap[0].CID != "call-1" || snap[1].CID != "call-2" {
		t.Fatalf("Controllers() = %+v", snap)
	}

	m.Remove(snap[0])
	if len(snap) != 2 {
		t.Fatalf("mutating registry mutated the earlier snapshot: %+v", snap)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", m.Len())
	}
}

func TestHuntNextSkipsSkippableRoutesAndDials(t *testing.T) {
	var dialed []string
	m := New(nil, Config{
		Dial: func(ctx context.Context, c *b2bua.Controller, route *b2bua.Route) error {
			dialed = append(dialed, route.HostPort)
			return nil
		},
	})
	c := newTestController(m, "call-1")
	c.Routes = []*b2bua.Route{
		{Rnum: 1, HostPort: "10.0.0.2:5060", CreditTime: 0, Expires: 60}, // skippable
		{Rnum: 2, HostPort: "10.0.0.3:5060", CreditTime: 60, Expires: 60},
	}

	m.huntNext(c)

	if len(dialed) != 1 || dialed[0] != "10.0.0.3:5060" {
		t.Fatalf("dialed = %v, want only the non-skippable route", dialed)
	}
}

func TestHuntNextContinuesOnDialFailure(t *testing.T) {
	var dialed []string
	m := New(nil, Config{
		Dial: func(ctx context.Context, c *b2bua.Controller, route *b2bua.Route) error {
			dialed = append(dialed, route.HostPort)
			if route.Rnum == 1 {
				return errors.New("connection refused")
			}
			return nil
		},
	})
	c := newTestController(m, "call-1")
	c.Routes = []*b2bua.Route{
		{Rnum: 1, HostPort: "10.0.0.2:5060", CreditTime: 60, Expires: 60},
		{Rnum: 2, HostPort: "10.0.0.3:5060", CreditTime: 60, Expires: 60},
	}

	m.huntNext(c)

	if len(dialed) != 2 {
		t.Fatalf("dialed = %v, want both routes attempted after the first failure", dialed)
	}
}

func TestSummaryReportsCallCountAndLifecycleLabel(t *testing.T) {
	m := New(nil, Config{})
	if got := m.Summary(); got != "0 calls (running)\n" {
		t.Fatalf("Summary() = %q", got)
	}

	newTestController(m, "call-1")
	if got := m.Summary(); got == "0 calls (running)\n" {
		t.Fatalf("Summary() did not reflect the registered call: %q", got)
	}
}

func TestRewindBackdatesAccountingForProxiedCall(t *testing.T) {
	m := New(nil, Config{})
	c := newTestController(m, "call-rewind")
	acctA := &recordingAccounting{}
	acctO := &recordingAccounting{}
	c.AcctA = acctA
	c.AcctO = acctO

	before := time.Now()
	resp := m.rewind(idString(c.ID))
	if resp == "" || resp[:7] != "rewound" {
		t.Fatalf("rewind response = %q, want a success message", resp)
	}
	if acctA.disconnectedAt.IsZero() || acctO.disconnectedAt.IsZero() {
		t.Fatalf("rewind did not disconnect both accounting legs")
	}
	wantMax := before.Add(-rewindBackdate + time.Second)
	if acctA.disconnectedAt.After(wantMax) {
		t.Fatalf("disconnect time %v not back-dated by ~%v before %v", acctA.disconnectedAt, rewindBackdate, before)
	}
}

func TestRewindRefusesNonProxiedCall(t *testing.T) {
	m := New(nil, Config{})
	c := newTestController(m, "call-not-proxied")
	c.Proxied = false

	want := fmt.Sprintf("call %d is not proxied, refusing rewind\n", c.ID)
	if resp := m.rewind(idString(c.ID)); resp != want {
		t.Fatalf("rewind() on a non-proxied call = %q, want %q", resp, want)
	}
}

func TestRewindUnknownCallID(t *testing.T) {
	m := New(nil, Config{})
	if resp := m.rewind("999999"); resp != "no such call id 999999\n" {
		t.Fatalf("rewind(unknown) = %q", resp)
	}
}

func idString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
