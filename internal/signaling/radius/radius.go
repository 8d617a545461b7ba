// Package radius names the B2BUA's auth/accounting contracts. The RADIUS
// wire protocol itself is an external collaborator: no client for it is
// implemented here, only the Go interfaces a CallController needs against
// it, plus a couple of concrete Accounting sinks backed by local storage.
package radius

import (
	"context"
	"time"
)

// AuthResult is what an AuthProcessor hands back once a RADIUS
// Access-Request round trip completes.
type AuthResult struct {
	OK         bool
	Challenge  string // WWW-Authenticate value queued for a 401, if OK is false
	Attributes []Attribute
}

// Attribute is one decoded RADIUS reply attribute the controller cares
// about, already narrowed to the small set spec'd for routing.
type Attribute struct {
	Name  string // "h323-ivr-in" or "h323-credit-time"
	Value string
}

// AuthProcessor resolves an inbound call's routing via RADIUS
// Access-Request/Accept/Reject. Cancel aborts an in-flight request, e.g.
// when leg A hangs up before auth completes.
type AuthProcessor interface {
	Authenticate(ctx context.Context, cli, cld, sourceAddr string) (*AuthResult, error)
	Cancel()
}

// Accounting is the per-leg RADIUS accounting sink: Connect/Disconnect
// correspond to Acct-Status-Type Start/Stop.
type Accounting interface {
	Connect(at time.Time)
	Disconnect(at time.Time)
}

// FakeAccounting is the no-op sink used when acct_enable is false.
type FakeAccounting struct{}

func (FakeAccounting) Connect(time.Time)    {}
func (FakeAccounting) Disconnect(time.Time) {}

var _ Accounting = FakeAccounting{}
