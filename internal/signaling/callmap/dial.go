package callmap

import (
	"context"
	"fmt"

	"github.com/sebas/switchboard/internal/signaling/b2bua"
	"github.com/sebas/switchboard/internal/signaling/radius"
)

// NewDialFunc builds a DialFunc backed by a b2bua.CallService: it resolves
// route.HostPort + Cld into a SIP URI, creates the outbound leg, swaps in a
// per-route RecordingAccounting sink, and attaches the leg to the
// controller's hunt-on-fail machinery.
func NewDialFunc(svc b2bua.CallService, acctFactory func(direction, callID, cli, called string) radius.Accounting) DialFunc {
	return func(ctx context.Context, c *b2bua.Controller, route *b2bua.Route) error {
		target := fmt.Sprintf("sip:%s@%s", route.Cld, route.HostPort)

		lookup, err := svc.Lookup(ctx, target)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", target, err)
		}

		legO, err := svc.CreateOutboundLeg(ctx, lookup,
			b2bua.WithCallerID(route.Cli),
		)
		if err != nil {
			return fmt.Errorf("originate %s: %w", target, err)
		}

		if acctFactory != nil {
			c.AcctO = acctFactory("out", c.CID, route.Cli, route.Cld)
		}
		c.AttachOLeg(legO)
		return nil
	}
}
