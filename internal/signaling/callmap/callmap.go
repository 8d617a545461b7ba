// Package callmap is the CallMap: the registry of live b2bua.Controllers,
// the demux that turns an inbound SIP request into a controller action, the
// process lifecycle signal handling (SIGHUP/SIGUSR1/SIGUSR2/SIGPROF/SIGTERM),
// the periodic garbage-collecting diagnostic dump, and the UNIX control
// socket. Everything here runs on the reactor.Dispatcher's single owner
// goroutine; nothing in this package is safe to call from another goroutine
// except through reactor.ThreadBridge.CallFromThread.
package callmap

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sebas/switchboard/internal/reactor"
	"github.com/sebas/switchboard/internal/signaling/b2bua"
	"github.com/sebas/switchboard/internal/signaling/events"
	"github.com/sebas/switchboard/internal/signaling/radius"
	"github.com/sebas/switchboard/internal/signaling/translate"
)

// Config carries the deployment's static routing/auth/accounting policy,
// gathered once at startup from internal/signaling/config.Config.
type Config struct {
	StaticRoute     string
	AcceptIPs       []string
	NoDigestAuth    bool
	NoAuth          bool
	MaxCreditTime   int
	HideCallID      bool
	PassHeaders     []string
	HuntstopSCodes  map[int]bool
	AllowedPts      map[string]bool
	TrIn            *translate.Ruleset
	TrOut           *translate.Ruleset
	AuthProcFactory func(cli, cld, sourceAddr string) radius.AuthProcessor
	AcctFactory     func(direction, callID, cli, called string) radius.Accounting
	Dial            DialFunc

	// NodeID tags every published event with this switchboard instance;
	// defaults to "switchboard" if empty.
	NodeID string
	// EventPublisher receives call lifecycle events as controllers
	// progress; nil falls back to events.NewNoopPublisher().
	EventPublisher events.Publisher
}

// DialFunc places an outbound originate attempt for route against c,
// reporting the result back onto the Controller's own state machine by
// calling c.AttachOLeg on success. It is injected rather than hardwired to
// b2bua.CallService so tests can substitute a fake dialer.
type DialFunc func(ctx context.Context, c *b2bua.Controller, route *b2bua.Route) error

// CallMap is the single registry of live Controllers plus the process-wide
// debug/safe-stop/safe-restart flags spec.md's data model puts alongside it.
type CallMap struct {
	cfg  Config
	disp *reactor.Dispatcher

	controllers []*b2bua.Controller

	debugMode   atomic.Bool
	safeStop    atomic.Bool
	safeRestart atomic.Bool

	gc *gcState

	events *events.Builder
	pub    events.Publisher
}

// New constructs a CallMap bound to disp. Call Start to wire signals and the
// GClector timer before the dispatcher's Loop runs.
func New(disp *reactor.Dispatcher, cfg Config) *CallMap {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = "switchboard"
	}
	pub := cfg.EventPublisher
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	return &CallMap{cfg: cfg, disp: disp, events: events.NewBuilder(nodeID), pub: pub}
}

// Add registers a newly created controller. The removal hook that drops it
// the instant it goes Dead is the OnDead callback wired in NewController.
func (m *CallMap) Add(c *b2bua.Controller) {
	m.controllers = append(m.controllers, c)
}

// Remove drops c from the registry. Safe to call even if c was already
// removed (no-op).
func (m *CallMap) Remove(c *b2bua.Controller) {
	for i, cc := range m.controllers {
		if cc == c {
			m.controllers = append(m.controllers[:i], m.controllers[i+1:]...)
			return
		}
	}
}

// Controllers returns the live snapshot of registered controllers, ordered
// by registration (oldest first), matching the data model's "ordered" list.
func (m *CallMap) Controllers() []*b2bua.Controller {
	out := make([]*b2bua.Controller, len(m.controllers))
	copy(out, m.controllers)
	return out
}

// Len is the number of live controllers.
func (m *CallMap) Len() int { return len(m.controllers) }

// ByCallID does a linear scan for the controller owning callID; the
// registry is not expected to grow past a few thousand entries on a single
// reactor, so an index is not worth the bookkeeping.
func (m *CallMap) ByCallID(callID string) *b2bua.Controller {
	for _, c := range m.controllers {
		if c.CID == callID {
			return c
		}
	}
	return nil
}

// DebugMode reports the SIGUSR2-toggled debug flag.
func (m *CallMap) DebugMode() bool { return m.debugMode.Load() }

// NewController builds and registers a Controller for a freshly accepted
// INVITE, wiring its OnDead hook to deregister it and its hunt handler to
// this CallMap's dial logic.
func (m *CallMap) NewController(cid, cli, cld, callerName, remoteIP, sourceAddr string) *b2bua.Controller {
	var authProc radius.AuthProcessor
	if m.cfg.AuthProcFactory != nil && !m.cfg.NoAuth {
		authProc = m.cfg.AuthProcFactory(cli, cld, sourceAddr)
	}

	c := b2bua.NewController(b2bua.ControllerConfig{
		CID:            cid,
		Cli:            cli,
		Cld:            cld,
		CallerName:     callerName,
		RemoteIP:       remoteIP,
		SourceAddr:     sourceAddr,
		HuntstopSCodes: m.cfg.HuntstopSCodes,
		PassHeaders:    m.cfg.PassHeaders,
		AuthProc:       authProc,
		AcctA:          m.accounting("in", cid, cli, cld),
		AcctO:          radius.FakeAccounting{}, // replaced per-route by the DialFunc (dial.go)
		OnDead: func(dead *b2bua.Controller) {
			m.Remove(dead)
			m.pub.PublishAsync(m.events.CallEnded(dead.CID, dead.CID).
				Reason(events.EndReasonNormal, "").Build())
		},
	})
	c.SetHuntHandler(m.huntNext)
	m.Add(c)

	m.pub.PublishAsync(m.events.CallReceived(cid, cid).
		From(events.Endpoint{User: cli}).
		To(events.Endpoint{User: cld}).
		Source(sourceAddr, 0).
		Build())

	return c
}

func (m *CallMap) accounting(direction, cid, cli, cld string) radius.Accounting {
	if m.cfg.AcctFactory == nil {
		return radius.FakeAccounting{}
	}
	return m.cfg.AcctFactory(direction, cid, cli, cld)
}

// huntNext is the Controller's hunt-continuation hook: it pops the next
// route and places the originate attempt, rearming the route's group
// timeout if one is set.
func (m *CallMap) huntNext(c *b2bua.Controller) {
	route := c.NextRoute()
	if route == nil {
		return
	}
	if route.Skippable() {
		m.huntNext(c)
		return
	}

	if m.disp != nil {
		b2bua.ArmGroupTimeout(c, m.disp.Timers, route)
	}

	if m.cfg.Dial == nil {
		return
	}

	m.pub.PublishAsync(m.events.CallDialing(c.CID, c.CID).
		Destination(events.Endpoint{User: route.Cld, Host: route.HostPort}).
		DialTimeout(route.Expires).
		Build())

	ctx := context.Background()
	if err := m.cfg.Dial(ctx, c, route); err != nil {
		slog.Warn("[CallMap] originate failed, continuing hunt",
			"call_id", c.CID, "route", route.Rnum, "host_port", route.HostPort, "error", err)
		m.huntNext(c)
	}
}

// safeStopLabel is used in diagnostic dumps and CLI responses.
func (m *CallMap) safeStopLabel() string {
	switch {
	case m.safeStop.Load():
		return "safe_stop"
	case m.safeRestart.Load():
		return "safe_restart"
	default:
		return "running"
	}
}

// Summary produces the 'l' CLI command's one-line-per-call listing.
func (m *CallMap) Summary() string {
	if len(m.controllers) == 0 {
		return fmt.Sprintf("0 calls (%s)\n", m.safeStopLabel())
	}
	out := fmt.Sprintf("%d calls (%s)\n", len(m.controllers), m.safeStopLabel())
	for _, c := range m.controllers {
		out += fmt.Sprintf("  %d %s %s->%s state=%s\n", c.ID, c.CID, c.Cli, c.Cld, c.State())
	}
	return out
}
