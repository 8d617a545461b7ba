package callmap

import (
	"context"
	"log/slog"
	"syscall"
	"time"

	"github.com/sebas/switchboard/internal/reactor"
	"github.com/sebas/switchboard/internal/signaling/b2bua"
)

// safeStopPollInterval and safeStopMaxPolls implement the §4.8 safe-stop
// policy: poll every 500ms for the call registry to drain, forcing exit
// after 5 polls (2.5s) without waiting for any pending ACK, matching the
// documented existing behavior this repo does not have a transaction layer
// to improve on.
const (
	safeStopPollInterval = 500 * time.Millisecond
	safeStopMaxPolls     = 5
)

// Start wires the CallMap's lifecycle signal handlers and the GClector
// periodic timer into disp. Must be called before disp.Loop runs.
func (m *CallMap) Start(disp *reactor.Dispatcher, sockPath string) {
	m.disp = disp

	disp.Signals.Register(syscall.SIGHUP, m.onSIGHUP)
	disp.Signals.Register(syscall.SIGUSR2, m.onSIGUSR2)
	disp.Signals.Register(syscall.SIGPROF, m.onSIGPROF)
	disp.Signals.Register(syscall.SIGTERM, m.onSIGTERM)
	disp.Signals.Register(syscall.SIGUSR1, m.onSIGUSR1)

	m.startGClector(disp.Timers)

	if sockPath != "" {
		if err := m.startCLI(sockPath); err != nil {
			slog.Error("[CallMap] control socket failed to start", "path", sockPath, "error", err)
		}
	}
}

// onSIGHUP disconnects every live call immediately; used for emergency
// drain-and-reload without a process restart.
func (m *CallMap) onSIGHUP(_ syscall.Signal) {
	slog.Warn("[CallMap] SIGHUP received, disconnecting all calls", "count", len(m.controllers))
	for _, c := range m.Controllers() {
		if a := c.LegA(); a != nil {
			_ = a.Hangup(context.Background(), b2bua.TerminationCauseNormal)
		}
		if o := c.LegO(); o != nil {
			_ = o.Hangup(context.Background(), b2bua.TerminationCauseNormal)
		}
	}
}

// onSIGUSR2 toggles verbose per-call debug logging.
func (m *CallMap) onSIGUSR2(_ syscall.Signal) {
	next := !m.debugMode.Load()
	m.debugMode.Store(next)
	slog.Info("[CallMap] debug mode toggled", "enabled", next)
}

// onSIGPROF schedules a safe restart: wait for the registry to drain (or
// force-exit after safeStopMaxPolls), then re-exec. cmd/switchboard/main.go
// is the one that actually performs the re-exec once SafeRestartReady fires.
func (m *CallMap) onSIGPROF(_ syscall.Signal) {
	if m.safeRestart.Load() || m.safeStop.Load() {
		return
	}
	slog.Warn("[CallMap] SIGPROF received, scheduling safe restart")
	m.safeRestart.Store(true)
	m.armSafeStopPoll()
}

// onSIGTERM begins safe-stop: it sets the safe-stop flag and polls until no
// calls remain, then the process exits (the caller's main loop watches
// SafeStopReady()). New INVITEs are not refused while the poll runs.
func (m *CallMap) onSIGTERM(_ syscall.Signal) {
	if m.safeStop.Load() {
		return
	}
	slog.Warn("[CallMap] SIGTERM received, entering safe-stop")
	m.safeStop.Store(true)
	m.armSafeStopPoll()
}

// onSIGUSR1 is the daemonized log-file reopen signal. It only logs the
// request; no log file is reopened, and internal/logger has no reopen hook.
func (m *CallMap) onSIGUSR1(_ syscall.Signal) {
	slog.Info("[CallMap] SIGUSR1 received, reopen log requested")
}

// safeStopState tracks the poll count for the current safe-stop/restart
// drain, armed fresh each time onSIGTERM/onSIGPROF fires.
type safeStopState struct {
	polls int
	timer *reactor.Timer
}

func (m *CallMap) armSafeStopPoll() {
	if m.gc == nil {
		return
	}
	st := &safeStopState{}
	var tick func()
	tick = func() {
		st.polls++
		if len(m.controllers) == 0 {
			m.finishSafeStop(st)
			return
		}
		if st.polls >= safeStopMaxPolls {
			slog.Warn("[CallMap] safe-stop forced after max polls, calls still pending",
				"pending", len(m.controllers))
			m.finishSafeStop(st)
			return
		}
	}
	st.timer = m.disp.Timers.Register(tick, safeStopPollInterval, reactor.WithTicks(safeStopMaxPolls))
	st.timer.Arm()
}

// finishSafeStop cancels the poll timer and marks the drain as ready; the
// owning main loop is expected to observe SafeStopReady/SafeRestartReady and
// act (exit, or re-exec) on the next dispatcher tick.
func (m *CallMap) finishSafeStop(st *safeStopState) {
	if st.timer != nil {
		st.timer.Cancel()
	}
	m.gc.stopReady = true
}

// SafeStopReady reports whether a safe-stop drain has finished (or forced
// its way through); main.go exits the process once this is true.
func (m *CallMap) SafeStopReady() bool {
	return m.safeStop.Load() && m.gc != nil && m.gc.stopReady
}

// SafeRestartReady reports the same for a scheduled safe restart; main.go
// re-execs itself once this is true.
func (m *CallMap) SafeRestartReady() bool {
	return m.safeRestart.Load() && m.gc != nil && m.gc.stopReady
}
