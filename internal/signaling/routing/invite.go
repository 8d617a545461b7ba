package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emiago/sipgo/sip"
	psdp "github.com/pion/sdp/v3"
	"github.com/sebas/switchboard/internal/signaling/b2bua"
	"github.com/sebas/switchboard/internal/signaling/callmap"
	"github.com/sebas/switchboard/internal/signaling/dialog"
	"github.com/sebas/switchboard/internal/signaling/mediaclient"
)

// SessionRecorder records session info for the API
type SessionRecorder interface {
	RecordSession(callID, clientAddr string, clientPort int, serverAddr string, serverPort int)
}

// InviteHandler turns an inbound INVITE into a b2bua.Controller: it
// answers the A-leg locally (100 Trying / 183 / 200, same as before), then
// hands the call off to the CallMap's auth/route/hunt state machine instead
// of a dialplan executor.
type InviteHandler struct {
	transport       mediaclient.Transport
	advertiseAddr   string
	port            int
	dialogMgr       *dialog.Manager
	sessionRecorder SessionRecorder
	callMap         *callmap.CallMap
	callService     b2bua.CallService
}

// NewInviteHandler creates a new INVITE handler.
func NewInviteHandler(
	transport mediaclient.Transport,
	advertiseAddr string,
	port int,
	dialogMgr *dialog.Manager,
	sessionRecorder SessionRecorder,
	cm *callmap.CallMap,
	callService b2bua.CallService,
) *InviteHandler {
	return &InviteHandler{
		transport:       transport,
		advertiseAddr:   advertiseAddr,
		port:            port,
		dialogMgr:       dialogMgr,
		sessionRecorder: sessionRecorder,
		callMap:         cm,
		callService:     callService,
	}
}

// HandleINVITE processes incoming INVITE requests.
func (h *InviteHandler) HandleINVITE(req *sip.Request, tx sip.ServerTransaction) {
	slog.Info("Received INVITE", "from", req.From(), "to", req.To(), "call_id", req.CallID())

	remoteIP, sourceAddr := remoteAddrOf(req)
	result := h.callMap.RecvRequest(req, remoteIP, sourceAddr)
	if result.SIPCode != 0 && result.SIPCode != 200 {
		resp := sip.NewResponseFromRequest(req, sip.StatusCode(result.SIPCode), result.SIPReason, nil)
		if result.Challenge != "" {
			resp.AppendHeader(sip.NewHeader("WWW-Authenticate", result.Challenge))
		}
		_ = tx.Respond(resp)
		return
	}
	if result.Controller == nil {
		resp := sip.NewResponseFromRequest(req, sip.StatusNotImplemented, "Not Implemented", nil)
		_ = tx.Respond(resp)
		return
	}

	dlg, err := h.dialogMgr.CreateFromInvite(req, tx)
	if err != nil {
		slog.Error("Failed to create dialog", "error", err)
		return
	}

	if err := h.dialogMgr.SendTrying(dlg); err != nil {
		slog.Error("Failed to send 100 Trying", "error", err)
		return
	}

	clientAddr, clientPort, offeredCodecs, err := h.extractSDPInfo(req)
	if err != nil {
		slog.Error("Failed to extract SDP info", "error", err)
		notAcceptable := sip.NewResponseFromRequest(req, sip.StatusNotAcceptable, "Not Acceptable - invalid SDP", nil)
		_ = tx.Respond(notAcceptable)
		h.dialogMgr.Terminate(dlg.CallID, dialog.ReasonError)
		return
	}

	sessionResult, err := h.transport.CreateSession(context.Background(), mediaclient.SessionInfo{
		CallID:        dlg.CallID,
		RemoteAddr:    clientAddr,
		RemotePort:    clientPort,
		OfferedCodecs: offeredCodecs,
	})
	if err != nil {
		slog.Error("Failed to create media session", "error", err)
		notAcceptable := sip.NewResponseFromRequest(req, sip.StatusNotAcceptable, "Not Acceptable - "+err.Error(), nil)
		_ = tx.Respond(notAcceptable)
		h.dialogMgr.Terminate(dlg.CallID, dialog.ReasonError)
		return
	}

	dlg.SetSessionID(sessionResult.SessionID)
	dlg.SetMediaEndpoint(clientAddr, clientPort, sessionResult.SelectedCodec)

	if h.sessionRecorder != nil {
		h.sessionRecorder.RecordSession(dlg.CallID, clientAddr, clientPort, sessionResult.LocalAddr, sessionResult.LocalPort)
	}

	if err := h.dialogMgr.SendProgress(dlg, sessionResult.SDPBody); err != nil {
		slog.Error("Failed to send 183 Session Progress", "error", err)
	}
	slog.Info("Sent 183 Session Progress", "call_id", dlg.CallID, "session_id", sessionResult.SessionID)

	// Give the phone time to process 183 before 200; the teacher's INVITE
	// path used the same fixed pacing rather than waiting on a PRACK.
	time.Sleep(500 * time.Millisecond)

	if err := h.dialogMgr.SendOK(dlg, sessionResult.SDPBody); err != nil {
		slog.Error("Failed to send 200 OK", "error", err)
		_ = h.transport.DestroySession(context.Background(), sessionResult.SessionID, mediaclient.TerminateReasonError)
		h.dialogMgr.Terminate(dlg.CallID, dialog.ReasonError)
		return
	}
	slog.Info("Sent 200 OK", "call_id", dlg.CallID)

	legA, err := h.callService.AdoptInboundLeg(dlg, sessionResult.SessionID)
	if err != nil {
		slog.Error("Failed to adopt A leg", "call_id", dlg.CallID, "error", err)
		h.dialogMgr.Terminate(dlg.CallID, dialog.ReasonError)
		return
	}
	result.Controller.TryA(legA, result.Controller.Routes)

	if result.Controller.Routes == nil {
		// No static route configured: RADIUS auth/routing runs
		// asynchronously and feeds RouteResolved through OnAuthComplete.
		go h.runAuth(result.Controller)
		return
	}
	result.Controller.RouteResolved(true, "")
}

func (h *InviteHandler) runAuth(c *b2bua.Controller) {
	proc := c.AuthProc()
	if proc == nil {
		// No AuthProcFactory configured (no_auth deployments without a
		// static route) means there is nothing to wait on; treat as an
		// immediate auth failure so the call does not hang forever with an
		// empty route list.
		h.callMap.OnAuthComplete(c, nil, fmt.Errorf("no auth processor configured"))
		return
	}
	res, err := proc.Authenticate(context.Background(), c.Cli, c.Cld, c.SourceAddr)
	h.callMap.OnAuthComplete(c, res, err)
}

// extractSDPInfo parses SDP to get client endpoint and offered codecs.
func (h *InviteHandler) extractSDPInfo(req *sip.Request) (clientAddr string, clientPort int, codecs []string, err error) {
	callID := req.CallID()

	if req.Body() == nil {
		return "", 0, nil, fmt.Errorf("no SDP body in INVITE")
	}

	sdpObj := &psdp.SessionDescription{}
	if err := sdpObj.Unmarshal(req.Body()); err != nil {
		return "", 0, nil, fmt.Errorf("failed to parse SDP: %w", err)
	}

	if len(sdpObj.MediaDescriptions) == 0 {
		return "", 0, nil, fmt.Errorf("no media descriptions in SDP")
	}

	mediaDesc := sdpObj.MediaDescriptions[0]
	clientPort = mediaDesc.MediaName.Port.Value
	codecs = mediaDesc.MediaName.Formats

	slog.Info("[SDP] Parsed media", "callID", callID, "media", mediaDesc.MediaName.Media, "port", clientPort, "codecs", codecs)

	if mediaDesc.ConnectionInformation != nil && mediaDesc.ConnectionInformation.Address != nil {
		clientAddr = mediaDesc.ConnectionInformation.Address.Address
	} else if sdpObj.ConnectionInformation != nil && sdpObj.ConnectionInformation.Address != nil {
		clientAddr = sdpObj.ConnectionInformation.Address.Address
	}

	if clientAddr == "" {
		return "", 0, nil, fmt.Errorf("no client address in SDP")
	}

	return clientAddr, clientPort, codecs, nil
}

// remoteAddrOf pulls the peer address sipgo recorded for this request, used
// for accept_ips filtering and the AuthProcessor's source_addr.
func remoteAddrOf(req *sip.Request) (remoteIP, sourceAddr string) {
	src := req.Source()
	return src, src
}
