// Package reactor implements the single-threaded cooperative event
// dispatcher at the heart of the switchboard: a timer heap, an
// async-signal-safe signal bridge, a cross-thread call bridge, and the
// frequency-banded pacer that ties them into one owner-goroutine loop.
//
// Every call-controller, timer, and signal callback in the rest of this
// module runs on the goroutine that calls Dispatcher.Loop. Long-running
// work must be offloaded elsewhere and re-enter via ThreadBridge.
package reactor

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// ExceptionLogger receives callback panics/errors that the dispatcher
// catches and swallows. A nil logger falls back to log/slog.
type ExceptionLogger interface {
	DumpException(context string, err any)
}

type slogExceptionLogger struct{}

func (slogExceptionLogger) DumpException(context string, err any) {
	slog.Error("reactor: callback error", "context", context, "error", fmt.Sprint(err))
}

// Dispatcher is the reactor loop composing TimerService, SignalService, and
// ThreadBridge onto one owner goroutine. Construct one per process; running
// two Loop calls concurrently on the same Dispatcher is a programmer error.
type Dispatcher struct {
	Timers  *TimerService
	Signals *SignalService
	Threads *ThreadBridge
	pacer   *PeriodicPacer

	logger ExceptionLogger

	lastTS MonoTime

	running        atomic.Bool
	stopRequested  atomic.Bool
	ownerGoroutine int64
}

// New constructs a Dispatcher with its pacer running at hz by default (100
// if hz <= 0).
func New(hz float64, logger ExceptionLogger) *Dispatcher {
	if logger == nil {
		logger = slogExceptionLogger{}
	}
	d := &Dispatcher{
		pacer:  NewPeriodicPacer(hz),
		logger: logger,
	}
	d.Timers = NewTimerService(d)
	d.Signals = NewSignalService(d)
	d.Threads = NewThreadBridge(d)
	return d
}

// Pacer exposes the dispatcher's pacer for callers that need to add or
// switch frequency bands (e.g. GClector's 60s -> 1s acceleration).
func (d *Dispatcher) Pacer() *PeriodicPacer { return d.pacer }

// LastTick returns the timestamp refreshed at the top of the current (or
// most recently completed) loop iteration.
func (d *Dispatcher) LastTick() MonoTime { return d.lastTS }

// BreakLoop requests termination of the running loop. Safe to call from
// timer/signal/cross-thread callbacks (already serialized on the owner
// goroutine) or via ThreadBridge from any other goroutine.
func (d *Dispatcher) BreakLoop() {
	d.stopRequested.Store(true)
}

// Loop runs the reactor until BreakLoop is called, timeout elapses (if
// nonzero), or a callback raises FatalExit. At most one Loop may run at a
// time; calling Loop while one is already running returns
// errAlreadyRunning.
func (d *Dispatcher) Loop(timeout time.Duration, freqHz float64) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer d.running.Store(false)

	d.ownerGoroutine = goroutineID()
	defer func() { d.ownerGoroutine = 0 }()

	if freqHz > 0 {
		band := d.pacer.AddBand(freqHz)
		d.pacer.UseBand(band)
	}

	defer func() {
		if r := recover(); r != nil {
			if r == FatalExit {
				err = FatalExit
				return
			}
			panic(r)
		}
	}()

	d.stopRequested.Store(false)
	d.lastTS = Now()

	var deadline MonoTime
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = d.lastTS.Offset(timeout)
	}

	for {
		if d.Signals.dispatch() {
			return nil
		}
		if d.stopRequested.Load() {
			return nil
		}

		if d.Timers.dispatch(d.lastTS) {
			return nil
		}
		if d.stopRequested.Load() {
			return nil
		}

		if d.Threads.dispatch() {
			return nil
		}
		if d.stopRequested.Load() {
			return nil
		}

		if hasDeadline && d.lastTS.After(deadline) {
			d.stopRequested.Store(false)
			return nil
		}

		d.pacer.Procrastinate()
		d.lastTS = Now()
	}
}

func (d *Dispatcher) logCallbackError(kind string, r any) {
	d.logger.DumpException(kind, r)
}

func (d *Dispatcher) logProgrammerError(op string, err error) {
	pe := &ProgrammerError{Op: op, Err: err}
	slog.Error(pe.Error(), "stack", string(debug.Stack()))
}

var errAlreadyRunning = fmt.Errorf("reactor: dispatcher loop already running")
