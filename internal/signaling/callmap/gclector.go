package callmap

import (
	"log/slog"
	"time"

	"github.com/sebas/switchboard/internal/reactor"
)

const (
	gcIntervalIdle    = 60 * time.Second
	gcIntervalLatched = 1 * time.Second
)

// gcState is the GClector's own bookkeeping: the periodic diagnostic-dump
// timer and whether a safe-stop/restart drain has completed.
type gcState struct {
	timer     *reactor.Timer
	latched   bool
	stopReady bool
}

// startGClector arms the periodic diagnostic dump. It runs every 60s while
// idle; once a safe-stop or safe-restart has been requested it accelerates
// to every 1s so the drain completes (or force-exits) promptly.
func (m *CallMap) startGClector(ts *reactor.TimerService) {
	m.gc = &gcState{}
	m.gc.timer = ts.Register(m.gcTick, gcIntervalIdle, reactor.WithTicks(-1))
	m.gc.timer.Arm()
}

func (m *CallMap) gcTick() {
	slog.Debug("[CallMap] GClector tick", "live_calls", len(m.controllers), "state", m.safeStopLabel())

	wantLatched := m.safeStop.Load() || m.safeRestart.Load()
	if wantLatched == m.gc.latched {
		return
	}
	m.gc.latched = wantLatched

	interval := gcIntervalIdle
	if wantLatched {
		interval = gcIntervalLatched
	}
	m.gc.timer.Cancel()
	m.gc.timer = m.disp.Timers.Register(m.gcTick, interval, reactor.WithTicks(-1))
	m.gc.timer.Arm()
}
