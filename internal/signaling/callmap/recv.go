package callmap

import (
	"fmt"
	"net"
	"strings"

	"github.com/emiago/sipgo/sip"
	"github.com/sebas/switchboard/internal/signaling/b2bua"
	"github.com/sebas/switchboard/internal/signaling/radius"
)

// RecvResult tells the SIP transport layer how to respond to the request
// that was handed to RecvRequest; the transport owns sending the actual
// response, RecvRequest only decides what it should be.
type RecvResult struct {
	// SIPCode/SIPReason are set when the CallMap wants an immediate final
	// response (no Controller involvement, or auth challenge).
	SIPCode   int
	SIPReason string

	// Challenge is the WWW-Authenticate/Proxy-Authenticate header value
	// for a 401/407 response; empty otherwise.
	Challenge string

	// Controller is set when a new Controller was created for this INVITE
	// and routing/auth is now pending; nil for anything handled inline.
	Controller *b2bua.Controller

	// Proxy indicates the request should be handed to the stateful
	// REGISTER/SUBSCRIBE proxy instead (recv.go only demuxes, it does not
	// own that code path).
	Proxy bool
}

func reject(code int, reason string) RecvResult {
	return RecvResult{SIPCode: code, SIPReason: reason}
}

// RecvRequest is the CallMap's top-level demux, matching spec §4.8's
// recv_request table: 481 if a to-tag is already present (mid-dialog
// request for an unknown controller), REGISTER/SUBSCRIBE to the stateful
// proxy, NOTIFY/PING answered directly, INVITE through accept_ips/auth/
// routing, anything else 501.
func (m *CallMap) RecvRequest(req *sip.Request, remoteIP, sourceAddr string) RecvResult {
	if toTag, ok := req.To().Params.Get("tag"); ok && toTag != "" {
		if m.ByCallID(callIDOf(req)) == nil {
			return reject(481, "Call/Transaction Does Not Exist")
		}
	}

	switch req.Method {
	case sip.REGISTER, sip.SUBSCRIBE:
		return RecvResult{Proxy: true}
	case sip.NOTIFY, "PING":
		return reject(200, "OK")
	case sip.INVITE:
		return m.recvInvite(req, remoteIP, sourceAddr)
	case sip.ACK, sip.BYE, sip.CANCEL:
		// Mid-dialog requests for a known controller: let the transport's
		// existing dialog/leg plumbing handle these directly; RecvRequest
		// only gates the call's birth.
		return RecvResult{}
	default:
		return reject(501, "Not Implemented")
	}
}

func (m *CallMap) recvInvite(req *sip.Request, remoteIP, sourceAddr string) RecvResult {
	if len(m.cfg.AcceptIPs) > 0 && !ipAccepted(m.cfg.AcceptIPs, remoteIP) {
		return reject(403, "Forbidden")
	}

	if ok := b2bua.AdjustMaxForwards(req); !ok {
		return reject(483, "Too Many Hops")
	}

	cli, cld := cliCldOf(req)
	callerName := callerNameOf(req)
	cid := callIDOf(req)

	if !m.cfg.NoAuth && !m.cfg.NoDigestAuth {
		authHeader := req.GetHeader("Authorization")
		if authHeader == nil {
			return RecvResult{SIPCode: 401, SIPReason: "Unauthorized", Challenge: newChallenge(cid)}
		}
	}

	c := m.NewController(cid, cli, cld, callerName, remoteIP, sourceAddr)
	c.Routes = m.resolveRoutes(c, cli, cld)
	return RecvResult{Controller: c}
}

// resolveRoutes builds the hunt list either from the configured static
// route (bypassing RADIUS entirely) or, in the absence of one, returns nil
// so the caller's AuthProcessor result (arriving asynchronously) populates
// it via RouteResolved.
func (m *CallMap) resolveRoutes(c *b2bua.Controller, cli, cld string) []*b2bua.Route {
	if m.cfg.StaticRoute != "" {
		return b2bua.RoutesFromStatic(m.cfg.StaticRoute, cld, cli)
	}
	return nil
}

// OnAuthComplete feeds an AuthProcessor's asynchronous result back into the
// controller once RADIUS (or its fake) responds.
func (m *CallMap) OnAuthComplete(c *b2bua.Controller, result *radius.AuthResult, err error) {
	if err != nil || result == nil || !result.OK {
		c.RouteResolved(false, "")
		return
	}
	ivr := radius.ParseIVRAttrs(result.Attributes)
	routes := b2bua.RoutesFromIVR(ivr, c.Cld, c.Cli)
	c.Routes = routes
	c.RouteResolved(true, "")
}

func newChallenge(cid string) string {
	return fmt.Sprintf(`Digest realm="switchboard", nonce="%s", algorithm=MD5`, cid)
}

func ipAccepted(accept []string, remoteIP string) bool {
	ip := net.ParseIP(remoteIP)
	for _, entry := range accept {
		if entry == remoteIP {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && ip != nil && cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func callIDOf(req *sip.Request) string {
	if h := req.CallID(); h != nil {
		return h.String()
	}
	return ""
}

func cliCldOf(req *sip.Request) (cli, cld string) {
	if from := req.From(); from != nil {
		cli = from.Address.User
	}
	if to := req.To(); to != nil {
		cld = to.Address.User
	}
	return cli, cld
}

func callerNameOf(req *sip.Request) string {
	from := req.From()
	if from == nil {
		return ""
	}
	return strings.Trim(from.DisplayName, `"`)
}
