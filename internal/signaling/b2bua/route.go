package b2bua

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sebas/switchboard/internal/reactor"
	"github.com/sebas/switchboard/internal/signaling/radius"
)

// Route is one hunt-on-fail target. The controller's Routes list is
// consumed strictly FIFO by NextRoute.
type Route struct {
	Rnum              int
	Cld               string
	Cli               string
	HostPort          string
	User              string
	Passw             string
	CreditTime        int // seconds; 0 means "skip this route"
	Expires           int // seconds; 0 means "skip this route"
	NoProgressExpires int
	NoReplyExpires    int
	ExtraHeaders      map[string]string
	ForwardOnFail     bool

	// GroupTimeout, if non-nil, schedules a one-shot timer when this route
	// is attempted: after Seconds, if the hunt is still in progress and
	// this route's Rnum is <= SkiptoRnum, the route list is fast-forwarded.
	GroupTimeout *GroupTimeout
}

// GroupTimeout is the route param group_timeout = (seconds, skipto_rnum).
type GroupTimeout struct {
	Seconds    time.Duration
	SkiptoRnum int
}

// Skippable reports whether the route must be dropped per the data model's
// "credit_time == 0 or expires == 0" rule.
func (r *Route) Skippable() bool {
	return r.CreditTime == 0 || r.Expires == 0
}

// RoutesFromStatic builds a single-route list from a configured
// static_route string, used when the deployment bypasses RADIUS routing
// entirely.
func RoutesFromStatic(staticRoute, cld, cli string) []*Route {
	if staticRoute == "" {
		return nil
	}
	return []*Route{{
		Rnum:       1,
		Cld:        cld,
		Cli:        cli,
		HostPort:   staticRoute,
		CreditTime: -1, // unlimited unless overridden by max_credit_time elsewhere
		Expires:    -1,
	}}
}

// RoutesFromIVR builds the hunt list from a parsed h323-ivr-in "Routing:"
// payload. The payload is a caller-defined list of hostport targets
// separated by ','; each becomes one route carrying the shared credit time
// from h323-credit-time. Routes failing Skippable are dropped, matching
// "routes with credit_time == 0 or expires == 0 are skipped."
func RoutesFromIVR(ivr radius.ParsedIVR, cld, cli string) []*Route {
	if ivr.Routing == "" {
		return nil
	}
	cliOverride := cli
	if ivr.CLI != "" {
		cliOverride = ivr.CLI
	}

	var routes []*Route
	for i, hp := range strings.Split(ivr.Routing, ",") {
		hp = strings.TrimSpace(hp)
		if hp == "" {
			continue
		}
		r := &Route{
			Rnum:       i + 1,
			Cld:        cld,
			Cli:        cliOverride,
			HostPort:   hp,
			CreditTime: ivr.CreditTime,
			Expires:    -1,
		}
		if ivr.CreditTime == 0 {
			continue // Skippable: credit_time == 0
		}
		routes = append(routes, r)
	}
	return routes
}

// groupTimeoutState tracks the one armed group-timeout timer for a
// Controller's current hunt attempt, so a later route replacing it can
// cancel the stale one.
type groupTimeoutState struct {
	timer *reactor.Timer
}

// ArmGroupTimeout schedules route.GroupTimeout (if set) against ts. It
// cancels any previously armed group timeout on c first, since only one
// hunt attempt (and therefore one group timeout) is active at a time.
func ArmGroupTimeout(c *Controller, ts *reactor.TimerService, route *Route) {
	if c.groupTimeout != nil && c.groupTimeout.timer != nil {
		c.groupTimeout.timer.Cancel()
		c.groupTimeout = nil
	}
	if route.GroupTimeout == nil {
		return
	}

	skipto := route.GroupTimeout.SkiptoRnum
	timer := ts.Register(func() {
		applyGroupTimeout(c, skipto)
	}, route.GroupTimeout.Seconds)
	timer.Arm()
	c.groupTimeout = &groupTimeoutState{timer: timer}
}

// applyGroupTimeout implements the §4.7 group-timeout policy: if A is still
// Trying/Ringing and routes remain with rnum <= skipto, fast-forward past
// them (or, if skipto is past the last route, leave the current attempt to
// run its course) and disconnect the in-flight O attempt to advance the
// hunt.
func applyGroupTimeout(c *Controller, skipto int) {
	if c.state != CCStateARComplete {
		return
	}
	aState := c.legA.GetState()
	if aState != LegStateCreated && aState != LegStateRinging && aState != LegStateEarlyMedia {
		return
	}
	if len(c.Routes) == 0 || c.Routes[0].Rnum > skipto {
		return
	}

	lastRnum := c.Routes[len(c.Routes)-1].Rnum
	if skipto > lastRnum {
		// skipto is past the last route: let the current attempt run out.
		return
	}

	kept := c.Routes[:0]
	for _, r := range c.Routes {
		if r.Rnum >= skipto {
			kept = append(kept, r)
		}
	}
	c.Routes = kept

	if c.legO != nil {
		_ = c.legO.Hangup(context.Background(), TerminationCauseTimeout)
	}
}

// maxForwardsFloor is the hop-count guard: Max-Forwards reaching this value
// (or below) on the inbound leg must be rejected with 483 before any
// originate, per the §4.7 hop-count policy.
const maxForwardsFloor = 0

// mangleCallIDFor is kept next to Route construction because both are part of
// "prepare the B-leg before originating"; see callid.go for the actual
// implementation and rationale.
func mangleCallIDFor(r *Route, original string, hideCallID bool) string {
	return MangleCallID(original, r.Rnum, hideCallID)
}

func formatRnum(n int) string { return strconv.Itoa(n) }
