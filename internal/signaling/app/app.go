package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/sebas/switchboard/internal/logger"
	"github.com/sebas/switchboard/internal/reactor"
	"github.com/sebas/switchboard/internal/signaling/b2bua"
	"github.com/sebas/switchboard/internal/signaling/callmap"
	"github.com/sebas/switchboard/internal/signaling/config"
	"github.com/sebas/switchboard/internal/signaling/dialog"
	"github.com/sebas/switchboard/internal/signaling/events"
	"github.com/sebas/switchboard/internal/signaling/location"
	"github.com/sebas/switchboard/internal/signaling/mediaclient"
	"github.com/sebas/switchboard/internal/signaling/radius"
	"github.com/sebas/switchboard/internal/signaling/registration"
	"github.com/sebas/switchboard/internal/signaling/routing"
	"github.com/sebas/switchboard/internal/signaling/store"
	"github.com/sebas/switchboard/internal/signaling/translate"
)

// SwitchBoard wires the sipgo transport, the B2BUA call service, and the
// CallMap's reactor-driven registry/dispatch into one running process.
type SwitchBoard struct {
	ua              *sipgo.UserAgent
	srv             *sipgo.Server
	client          *sipgo.Client
	config          *config.Config
	locationStore   location.LocationStore
	registerHandler *registration.Handler
	inviteHandler   *routing.InviteHandler
	byeHandler      *routing.BYEHandler
	ackHandler      *routing.ACKHandler
	cancelHandler   *routing.CANCELHandler
	dialogMgr       dialog.DialogStore
	transport       mediaclient.Transport
	callService     b2bua.CallService
	callMap         *callmap.CallMap
	dispatcher      *reactor.Dispatcher
}

// NewServer builds the SwitchBoard but does not start the reactor loop or
// bind the SIP socket; call Start for that.
func NewServer(cfg *config.Config) (*SwitchBoard, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("failed to create user agent: %w", err)
	}
	uas, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	uac, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	locStoreCfg := location.DefaultStoreConfig()
	locStore := location.NewStore(locStoreCfg)

	realm := cfg.AdvertiseAddr
	if realm == "" {
		realm = "switchboard.local"
	}
	registerHandler := registration.NewHandler(locStore, realm)

	contact := sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   "switchboard",
			Host:   cfg.AdvertiseAddr,
			Port:   cfg.Port,
		},
	}
	dialogUA := &sipgo.DialogUA{
		Client:     uac,
		ContactHDR: contact,
	}

	// RTPProxies (-r/--rtp-proxy) names an external RTP proxy fleet's
	// addresses for a future remote Transport; LocalTransport is the
	// standalone default and does not dial them itself.
	if len(cfg.RTPProxies) > 0 {
		slog.Info("RTP proxies configured but unused by LocalTransport", "addresses", cfg.RTPProxies)
	}
	mediaTransport := mediaclient.NewLocalTransport(cfg.AdvertiseAddr)

	dialogMgr := dialog.NewManager(uac, dialogUA)

	callService := b2bua.NewCallService(b2bua.CallServiceConfig{
		Client:        uac,
		Resolver:      b2bua.DefaultResolver(locStore, cfg.AdvertiseAddr),
		DialogManager: dialogMgr,
		Transport:     mediaTransport,
		LocalContact:  fmt.Sprintf("sip:switchboard@%s:%d", cfg.AdvertiseAddr, cfg.Port),
		AdvertiseAddr: cfg.AdvertiseAddr,
		Port:          cfg.Port,
	})

	trIn, err := translate.Parse(cfg.TrIn)
	if err != nil {
		ua.Close()
		locStore.Close()
		mediaTransport.Close()
		return nil, fmt.Errorf("invalid -t/--tr-in ruleset: %w", err)
	}
	trOut, err := translate.Parse(cfg.TrOut)
	if err != nil {
		ua.Close()
		locStore.Close()
		mediaTransport.Close()
		return nil, fmt.Errorf("invalid -T/--tr-out ruleset: %w", err)
	}

	cdrRepo := store.NewMemoryCDRRepository()
	acctFactory := func(direction, callID, cli, called string) radius.Accounting {
		if cfg.AcctLevel == 0 {
			return radius.FakeAccounting{}
		}
		return radius.NewRecordingAccounting(cdrRepo, callID, cli, "", called, direction, "", "")
	}

	// AuthProcFactory is only wired when -R/--radius-conf names a routing
	// table; -s/--static-route or -u/--no-auth deployments leave it nil and
	// CallMap.NewController skips building an AuthProcessor per call.
	var authProcFactory func(cli, cld, sourceAddr string) radius.AuthProcessor
	if cfg.RadiusConf != "" {
		authProcFactory = func(cli, cld, sourceAddr string) radius.AuthProcessor {
			return radius.NewFileAuthProcessor(cfg.RadiusConf)
		}
	}

	dispatcher := reactor.New(20, logger.ExceptionLogger{})
	cm := callmap.New(dispatcher, callmap.Config{
		StaticRoute:     cfg.StaticRoute,
		AcceptIPs:       cfg.AcceptIPs,
		NoDigestAuth:    cfg.NoDigestAuth,
		NoAuth:          cfg.NoAuth,
		MaxCreditTime:   cfg.MaxCreditTime,
		HideCallID:      cfg.HideCallID,
		PassHeaders:     cfg.PassHeaders,
		HuntstopSCodes:  map[int]bool{},
		AllowedPts:      allowedPtsSet(cfg.AllowedPts),
		TrIn:            trIn,
		TrOut:           trOut,
		AuthProcFactory: authProcFactory,
		AcctFactory:     acctFactory,
		Dial:            callmap.NewDialFunc(callService, acctFactory),
		NodeID:          cfg.AdvertiseAddr,
		EventPublisher:  events.NewLoggingPublisher(nil),
	})

	inviteHandler := routing.NewInviteHandler(
		mediaTransport,
		cfg.AdvertiseAddr,
		cfg.Port,
		dialogMgr,
		nil, // sessionRecorder: no HTTP API surface to feed (SPEC_FULL §4.12)
		cm,
		callService,
	)
	byeHandler := routing.NewBYEHandler(dialogMgr, callService)
	ackHandler := routing.NewACKHandler(dialogMgr)
	cancelHandler := routing.NewCANCELHandler(dialogMgr)

	proxy := &SwitchBoard{
		ua:              ua,
		srv:             uas,
		client:          uac,
		config:          cfg,
		locationStore:   locStore,
		registerHandler: registerHandler,
		inviteHandler:   inviteHandler,
		byeHandler:      byeHandler,
		ackHandler:      ackHandler,
		cancelHandler:   cancelHandler,
		dialogMgr:       dialogMgr,
		transport:       mediaTransport,
		callService:     callService,
		callMap:         cm,
		dispatcher:      dispatcher,
	}

	dialogMgr.SetOnTerminated(func(d *dialog.Dialog) {
		if sessionID := d.GetSessionID(); sessionID != "" {
			reason := mediaclient.TerminateReasonNormal
			switch d.TerminateReason {
			case dialog.ReasonRemoteBYE:
				reason = mediaclient.TerminateReasonBYE
			case dialog.ReasonCancel:
				reason = mediaclient.TerminateReasonCancel
			case dialog.ReasonTimeout:
				reason = mediaclient.TerminateReasonTimeout
			case dialog.ReasonError:
				reason = mediaclient.TerminateReasonError
			}
			if err := mediaTransport.DestroySession(context.Background(), sessionID, reason); err != nil {
				slog.Warn("[App] Failed to destroy session", "session_id", sessionID, "error", err)
			}
		}
	})

	uas.OnRequest(sip.REGISTER, proxy.handleRegister)
	uas.OnRequest(sip.INVITE, proxy.handleINVITE)
	uas.OnRequest(sip.BYE, proxy.handleBYE)
	uas.OnRequest(sip.ACK, proxy.handleACK)
	uas.OnRequest(sip.CANCEL, proxy.handleCANCEL)

	slog.Info("SIP handlers registered", "methods", "REGISTER, INVITE, BYE, ACK, CANCEL")
	slog.Info("Configuration", "port", cfg.Port, "bind", cfg.BindAddr, "realm", realm)

	return proxy, nil
}

func allowedPtsSet(pts []string) map[string]bool {
	if len(pts) == 0 {
		return nil
	}
	out := make(map[string]bool, len(pts))
	for _, pt := range pts {
		out[pt] = true
	}
	return out
}

// CallMap exposes the running CallMap so main.go can poll
// SafeStopReady/SafeRestartReady after a SIGTERM/SIGPROF.
func (p *SwitchBoard) CallMap() *callmap.CallMap { return p.callMap }

// Dispatcher exposes the reactor loop so main.go can BreakLoop it once a
// safe-stop/safe-restart drain completes.
func (p *SwitchBoard) Dispatcher() *reactor.Dispatcher { return p.dispatcher }

// Start binds the SIP socket and runs the CallMap's reactor loop; it blocks
// until the loop is stopped with BreakLoop or a callback raises FatalExit.
// ctx only governs the SIP listener, not the loop. The CLI control
// socket (-c/--socket) and CLI flags are the only external interfaces this
// process exposes — no HTTP API is started.
func (p *SwitchBoard) Start(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", p.config.BindAddr, p.config.Port)
	slog.Info("Starting SIP server", "listenAddr", listenAddr)

	p.callMap.Start(p.dispatcher, p.config.Socket)

	go func() {
		if err := p.srv.ListenAndServe(ctx, "udp", listenAddr); err != nil {
			slog.Error("Failed to bind to SIP port", "port", p.config.Port, "error", err)
		}
	}()

	return p.dispatcher.Loop(0, 20)
}

func (p *SwitchBoard) handleRegister(req *sip.Request, tx sip.ServerTransaction) {
	if err := p.registerHandler.HandleRegister(req, tx); err != nil {
		slog.Error("Error handling REGISTER", "error", err)
		res := sip.NewResponseFromRequest(req, sip.StatusInternalServerError, "Server Error", nil)
		if err := tx.Respond(res); err != nil {
			slog.Error("Error sending error response", "error", err)
		}
	}
}

func (p *SwitchBoard) handleINVITE(req *sip.Request, tx sip.ServerTransaction) {
	p.inviteHandler.HandleINVITE(req, tx)
}

func (p *SwitchBoard) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	p.byeHandler.HandleBYE(req, tx)
}

func (p *SwitchBoard) handleACK(req *sip.Request, tx sip.ServerTransaction) {
	p.ackHandler.HandleACK(req, tx)
}

func (p *SwitchBoard) handleCANCEL(req *sip.Request, tx sip.ServerTransaction) {
	p.cancelHandler.HandleCANCEL(req, tx)
}

func (p *SwitchBoard) Close() error {
	dialogs := p.dialogMgr.List()
	for _, dlg := range dialogs {
		if !dlg.IsTerminated() {
			p.dialogMgr.Terminate(dlg.CallID, dialog.ReasonLocalBYE)
		}
	}

	if p.dialogMgr != nil {
		p.dialogMgr.Close()
	}
	if p.transport != nil {
		p.transport.Close()
	}
	if p.locationStore != nil {
		p.locationStore.Close()
	}
	if p.ua != nil {
		return p.ua.Close()
	}
	return nil
}
