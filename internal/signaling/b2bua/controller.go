package b2bua

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/sebas/switchboard/internal/signaling/dialog"
	"github.com/sebas/switchboard/internal/signaling/radius"
)

// CCState is the call-controller's own state, distinct from the per-leg
// LegState: it tracks the two-leg B2BUA relationship, not either leg alone.
type CCState int

const (
	// CCStateIdle is before any event has been processed.
	CCStateIdle CCState = iota
	// CCStateWaitRoute is while RADIUS auth/routing is outstanding.
	CCStateWaitRoute
	// CCStateARComplete is while an originate attempt is in flight.
	CCStateARComplete
	// CCStateConnected is once leg A has seen answer.
	CCStateConnected
	// CCStateDisconnecting is once leg A went down but leg O is still closing.
	CCStateDisconnecting
	// CCStateDead is terminal.
	CCStateDead
)

func (s CCState) String() string {
	switch s {
	case CCStateIdle:
		return "Idle"
	case CCStateWaitRoute:
		return "WaitRoute"
	case CCStateARComplete:
		return "ARComplete"
	case CCStateConnected:
		return "Connected"
	case CCStateDisconnecting:
		return "Disconnecting"
	case CCStateDead:
		return "Dead"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// ccTransitions enumerates every allowed next state. Any transition not
// listed here is a programmer error in the controller logic, not a
// reachable runtime event.
var ccTransitions = map[CCState][]CCState{
	CCStateIdle:          {CCStateWaitRoute, CCStateDead},
	CCStateWaitRoute:     {CCStateARComplete, CCStateDead},
	CCStateARComplete:    {CCStateARComplete, CCStateConnected, CCStateDisconnecting, CCStateDead},
	CCStateConnected:     {CCStateConnected, CCStateDisconnecting, CCStateDead},
	CCStateDisconnecting: {CCStateDead},
	CCStateDead:          {},
}

// CanTransitionTo reports whether next is a legal transition from s.
func (s CCState) CanTransitionTo(next CCState) bool {
	for _, allowed := range ccTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is Dead.
func (s CCState) IsTerminal() bool { return s == CCStateDead }

var idSeq atomic.Uint64

// Controller is the two-leg B2BUA call-control state machine: it owns leg A
// (the inbound UAS side) and leg O (the outbound UAC side, hunted across a
// Route list), and drives auth, hunt-on-fail, billing start/stop, and
// teardown between them.
//
// A Controller is not safe for concurrent use: every method is expected to
// run on the CallMap's single owner goroutine, reached either directly or
// via reactor.ThreadBridge.CallFromThread. This mirrors the B2BUA data
// model's "no user-visible concurrency inside a controller" rule.
type Controller struct {
	ID   uint64
	CID  string // outbound Call-ID, possibly mangled (see callid.go)
	Cli  string
	Cld  string
	CallerName string

	state CCState

	legA Leg
	legO Leg

	Routes         []*Route
	HuntstopSCodes map[int]bool
	PassHeaders    []string
	RemoteIP       string
	SourceAddr     string
	Proxied        bool
	PassAuth       bool

	AcctA radius.Accounting
	AcctO radius.Accounting

	authProc  radius.AuthProcessor
	challenge string

	onDead   func(*Controller)
	huntNext func(*Controller)

	groupTimeout *groupTimeoutState
}

// ControllerConfig carries the construction-time inputs a CallMap gathers
// from the inbound INVITE before routing is resolved.
type ControllerConfig struct {
	CID            string
	Cli            string
	Cld            string
	CallerName     string
	RemoteIP       string
	SourceAddr     string
	HuntstopSCodes map[int]bool
	PassHeaders    []string
	AuthProc       radius.AuthProcessor
	AcctA          radius.Accounting
	AcctO          radius.Accounting
	OnDead         func(*Controller)
}

// NewController constructs a Controller in CCStateIdle. The caller
// transitions it to WaitRoute once leg A has been adopted (see TryA).
func NewController(cfg ControllerConfig) *Controller {
	huntstop := cfg.HuntstopSCodes
	if huntstop == nil {
		huntstop = map[int]bool{}
	}
	acctA, acctO := cfg.AcctA, cfg.AcctO
	if acctA == nil {
		acctA = radius.FakeAccounting{}
	}
	if acctO == nil {
		acctO = radius.FakeAccounting{}
	}
	return &Controller{
		ID:             idSeq.Add(1),
		CID:            cfg.CID,
		Cli:            cfg.Cli,
		Cld:            cfg.Cld,
		CallerName:     cfg.CallerName,
		RemoteIP:       cfg.RemoteIP,
		SourceAddr:     cfg.SourceAddr,
		HuntstopSCodes: huntstop,
		PassHeaders:    cfg.PassHeaders,
		// Every Controller this package constructs is a full B2BUA leg
		// pair (no transparent/pass-through mode exists here), so Proxied
		// is unconditionally true; it exists as a field, not a runtime
		// switch, so the CLI rewind command has something to gate on.
		Proxied:  true,
		authProc: cfg.AuthProc,
		AcctA:    acctA,
		AcctO:    acctO,
		onDead:   cfg.OnDead,
		state:    CCStateIdle,
	}
}

// State returns the current controller state.
func (c *Controller) State() CCState { return c.state }

// LegA returns the inbound leg, or nil before TryA.
func (c *Controller) LegA() Leg { return c.legA }

// LegO returns the current outbound leg, or nil before the first originate.
func (c *Controller) LegO() Leg { return c.legO }

// AuthProc returns the AuthProcessor the CallMap's AuthProcFactory built for
// this call, or nil when no factory is configured (static routing / no_auth
// deployments). The routing package's InviteHandler calls this to drive the
// asynchronous Authenticate -> OnAuthComplete round trip.
func (c *Controller) AuthProc() radius.AuthProcessor { return c.authProc }

// transition moves the controller to next, logging and refusing anything
// not present in ccTransitions. A refused transition leaves the state
// unchanged — the caller is responsible for deciding whether that is fatal.
func (c *Controller) transition(next CCState) bool {
	if !c.state.CanTransitionTo(next) {
		slog.Error("[Controller] illegal state transition",
			"call_id", c.CID, "from", c.state.String(), "to", next.String())
		return false
	}
	slog.Debug("[Controller] state transition",
		"call_id", c.CID, "from", c.state.String(), "to", next.String())
	c.state = next
	if next == CCStateDead && c.onDead != nil {
		c.onDead(c)
	}
	return true
}

// TryA processes the A-leg's initial INVITE: it records addressing, adopts
// the dialog as leg A, and moves the controller to WaitRoute. The caller is
// responsible for SDP filtering, NAT rewrite, and translation before this
// is called (see sdpfilter.go, callid.go, the translate package) — those
// policies run on the raw request, not on the Controller.
func (c *Controller) TryA(legA Leg, routes []*Route) {
	c.legA = legA
	c.Routes = routes
	c.transition(CCStateWaitRoute)

	legA.OnStateChange(func(old, new LegState) {
		c.onALegEvent(old, new)
	})
}

// RouteResolved is called once auth/routing produced a (possibly empty)
// route list. An empty list or an auth failure disconnects leg A.
func (c *Controller) RouteResolved(ok bool, challenge string) bool {
	if c.state != CCStateWaitRoute {
		return false
	}
	if !ok {
		c.challenge = challenge
		_ = c.legA.Hangup(context.Background(), TerminationCauseRejected)
		return c.transition(CCStateDead)
	}
	if len(c.Routes) == 0 {
		_ = c.legA.Hangup(context.Background(), TerminationCauseError)
		return c.transition(CCStateDead)
	}
	if !c.transition(CCStateARComplete) {
		return false
	}
	// Place the first originate attempt through the same hook hunt-on-fail
	// uses; it pops the head route.
	if c.huntNext != nil {
		c.huntNext(c)
	}
	return true
}

// NextRoute pops and returns the next route to attempt, or nil if the list
// is exhausted. Hunt-on-fail consumes the list strictly FIFO.
func (c *Controller) NextRoute() *Route {
	if len(c.Routes) == 0 {
		return nil
	}
	r := c.Routes[0]
	c.Routes = c.Routes[1:]
	return r
}

// AttachOLeg records the outbound leg for the current hunt attempt and
// wires its termination back into hunt-on-fail / teardown logic.
func (c *Controller) AttachOLeg(legO Leg) {
	c.legO = legO
	legO.OnStateChange(func(old, new LegState) {
		c.onOLegEvent(old, new)
	})
}

// onALegEvent implements the A-leg column of the transition table: Idle
// reacting to anything but the initial Try disconnects; once Connected, the
// A-leg going down starts Disconnecting.
func (c *Controller) onALegEvent(old, new LegState) {
	switch {
	case new == LegStateAnswered && c.state == CCStateARComplete:
		c.AcctA.Connect(time.Now())
		c.transition(CCStateConnected)
	case new.IsTerminal() && c.state == CCStateConnected:
		c.AcctA.Disconnect(time.Now())
		c.transition(CCStateDisconnecting)
		if c.legO != nil {
			_ = c.legO.Hangup(context.Background(), TerminationCauseBridgePeer)
		}
	case new.IsTerminal() && (c.state == CCStateWaitRoute || c.state == CCStateARComplete):
		if c.authProc != nil {
			c.authProc.Cancel()
		}
		c.transition(CCStateDead)
	}
	c.maybeRemove()
}

// onOLegEvent implements the O-leg column: fail/disconnect while hunting
// and routes remain triggers the next originate; otherwise the failure (or
// eventual Dead after A already went Disconnecting) forwards to A.
func (c *Controller) onOLegEvent(old, new LegState) {
	if new.IsTerminal() && c.state == CCStateDisconnecting {
		c.transition(CCStateDead)
		c.maybeRemove()
		return
	}

	if new != LegStateFailed && new != LegStateDestroyed {
		return
	}
	if c.state != CCStateARComplete {
		return
	}

	code := 0
	if info := c.legO.Info(); info != nil {
		code = info.SIPCode
	}

	aState := c.legA.GetState()
	huntable := (aState == LegStateCreated || aState == LegStateRinging || aState == LegStateEarlyMedia) &&
		len(c.Routes) > 0 && !c.HuntstopSCodes[code]

	if huntable {
		// Caller (CallMap) observes this via a registered hunt-continuation
		// hook; the Controller itself does not know how to dial, since
		// dialing requires the Originator/resolver collaborators.
		if c.huntNext != nil {
			c.huntNext(c)
		}
		return
	}

	_ = c.legA.Hangup(context.Background(), TerminationCauseRejected)
	if c.state == CCStateConnected {
		c.transition(CCStateDisconnecting)
	} else {
		c.transition(CCStateDead)
	}
	c.maybeRemove()
}

func (c *Controller) maybeRemove() {
	if c.state.IsTerminal() {
		return
	}
	if c.legA == nil || c.legO == nil {
		return
	}
	if c.legA.GetState().IsTerminal() && c.legO.GetState().IsTerminal() {
		c.transition(CCStateDead)
	}
}

// SetHuntHandler registers the callback CallMap uses to place the next
// originate attempt when hunt-on-fail determines one is warranted.
func (c *Controller) SetHuntHandler(fn func(*Controller)) {
	c.huntNext = fn
}

// AdjustMaxForwards decrements Max-Forwards for the outbound leg per the
// hop-count policy. It returns ok=false (sending 483 is the caller's
// responsibility) when the value would drop to zero or below.
func AdjustMaxForwards(req *sip.Request) (ok bool) {
	hdr := req.GetHeader("Max-Forwards")
	if hdr == nil {
		return true
	}
	mf, ok2 := hdr.(*sip.MaxForwardsHeader)
	if !ok2 {
		return true
	}
	if *mf == 0 {
		return false
	}
	*mf--
	return *mf > 0
}

// dialogFromLeg is a small helper used by callers that need the raw
// *dialog.Dialog behind a Leg (e.g. to read INVITE headers for pass_headers
// forwarding). Returns nil if leg has no dialog attached yet.
func dialogFromLeg(l Leg) *dialog.Dialog {
	if l == nil {
		return nil
	}
	return l.Dialog()
}
