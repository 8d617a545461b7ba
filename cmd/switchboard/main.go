package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sebas/switchboard/internal/banner"
	"github.com/sebas/switchboard/internal/logger"
	"github.com/sebas/switchboard/internal/signaling/app"
	"github.com/sebas/switchboard/internal/signaling/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	banner.Print("SWITCHBOARD", []banner.ConfigLine{
		{Label: "Listen", Value: fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)},
		{Label: "Advertise", Value: cfg.AdvertiseAddr},
		{Label: "RTP Proxies", Value: strings.Join(cfg.RTPProxies, ",")},
		{Label: "Log Level", Value: cfg.LogLevel},
	})

	logger.InitLogger(os.Stdout)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			slog.Error("Failed to open log file", "path", cfg.LogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.InitLogger(f)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.PIDFile != "" {
		if err := os.WriteFile(cfg.PIDFile, []byte(pidText()), 0644); err != nil {
			slog.Error("Failed to write pidfile", "path", cfg.PIDFile, "error", err)
		}
	}

	swboard, err := app.NewServer(cfg)
	if err != nil {
		slog.Error("Failed to create signaling server", "error", err)
		os.Exit(1)
	}
	defer swboard.Close()

	run(swboard, cfg)
}

func run(proxy *app.SwitchBoard, cfg *config.Config) {
	slog.Info("Starting Switchboard Signaling Server",
		"port", cfg.Port,
		"rtp_proxies", cfg.RTPProxies,
	)
	logNetworkInterfaces()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopErr := make(chan error, 1)
	go func() { loopErr <- proxy.Start(ctx) }()

	watchLifecycle(proxy)

	if err := <-loopErr; err != nil {
		slog.Error("Dispatcher loop error", "error", err)
	}
}

// watchLifecycle polls the CallMap's safe-stop/safe-restart flags (set by
// SIGTERM/SIGPROF through the reactor's signal dispatch) and reacts once a
// drain completes: safe-stop breaks the loop and exits, safe-restart
// re-execs a fresh copy of this binary before exiting. Unlike a TCP listen
// socket, the SIP transport here is a connectionless UDP packet conn that
// sipgo owns internally, so the re-exec does not attempt FD inheritance —
// the new process rebinds the port after the old one releases it.
func watchLifecycle(proxy *app.SwitchBoard) {
	cm := proxy.CallMap()
	disp := proxy.Dispatcher()

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			switch {
			case cm.SafeRestartReady():
				slog.Info("Safe restart drained, re-executing")
				reexec()
				disp.BreakLoop()
				return
			case cm.SafeStopReady():
				slog.Info("Safe stop drained, exiting")
				disp.BreakLoop()
				return
			}
		}
	}()
}

func reexec() {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		slog.Error("Failed to re-exec for safe restart", "error", err)
		return
	}
	slog.Info("Re-exec started", "pid", cmd.Process.Pid)
}

func pidText() string {
	return strconv.Itoa(os.Getpid()) + "\n"
}

func logNetworkInterfaces() {
	interfaces, err := net.Interfaces()
	if err != nil {
		return
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			slog.Debug("Network interface", "interface", iface.Name, "ip", ip.String())
		}
	}
}
