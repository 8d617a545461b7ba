package reactor

import (
	"container/heap"
	"math/rand"
	"time"
)

// Timer is a handle to a registered timer entry. Register constructs the
// entry but does not schedule it; call Arm (relative) or ArmAt (absolute)
// to compute due and insert it into the heap.
type Timer struct {
	entry *timerEntry
	svc   *TimerService
	armed bool
}

// TimerOption configures a Timer at registration time.
type TimerOption func(*timerEntry)

// WithTicks sets the number of firings before the timer retires. n == -1
// means infinite (periodic forever); the default is 1 (one-shot).
func WithTicks(n int) TimerOption {
	return func(e *timerEntry) { e.remainingTicks = n }
}

// WithJitter sets the jitter fraction p in [0,1] applied to each periodic
// reschedule: due' = due + interval*(1 + p*(1-2*U)).
func WithJitter(p float64) TimerOption {
	return func(e *timerEntry) {
		e.hasJitter = p > 0
		e.jitter = p
	}
}

// TimerService is the user-facing timer surface sitting atop a Dispatcher's
// timer heap. All methods except Register/Cancel's ProgrammerError
// diagnostic are owner-thread-only, matching the dispatcher's single
// cooperative thread.
type TimerService struct {
	disp   *Dispatcher
	heap   timerHeap
	wasted int
	seq    uint64
	rnd    *rand.Rand
}

// NewTimerService constructs a TimerService bound to a Dispatcher.
func NewTimerService(d *Dispatcher) *TimerService {
	return &TimerService{
		disp: d,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register builds a Timer whose callback ignores the firing timestamp.
// The returned Timer is unarmed; call Arm or ArmAt to schedule it.
func (s *TimerService) Register(callback func(), interval time.Duration, opts ...TimerOption) *Timer {
	return s.registerEntry(func(MonoTime) { callback() }, interval, false, opts)
}

// RegisterTS builds a Timer whose callback receives the dispatcher's
// last-observed timestamp at firing time.
func (s *TimerService) RegisterTS(callback func(ts MonoTime), interval time.Duration, opts ...TimerOption) *Timer {
	return s.registerEntry(callback, interval, true, opts)
}

func (s *TimerService) registerEntry(callback func(MonoTime), interval time.Duration, withTS bool, opts []TimerOption) *Timer {
	e := &timerEntry{
		interval:       interval,
		remainingTicks: 1,
		withTimestamp:  withTS,
		callback:       callback,
	}
	for _, opt := range opts {
		opt(e)
	}
	return &Timer{entry: e, svc: s}
}

// Arm schedules a relative timer: due = now + jittered(interval).
func (t *Timer) Arm() {
	now := t.svc.disp.LastTick()
	t.entry.itime = now
	t.entry.absolute = false
	t.entry.due = now.Offset(t.svc.nextInterval(t.entry))
	t.svc.insert(t.entry)
	t.armed = true
}

// ArmAt schedules an absolute one-shot timer firing at due. remainingTicks
// is forced to 1 regardless of WithTicks, matching the data model's
// absolute-timer rule.
func (t *Timer) ArmAt(due MonoTime) {
	t.entry.itime = t.svc.disp.LastTick()
	t.entry.absolute = true
	t.entry.remainingTicks = 1
	t.entry.due = due
	t.svc.insert(t.entry)
	t.armed = true
}

// Cancel marks the timer cancelled. The entry remains a tombstone in the
// heap until lazy compaction. Cancelling from a goroutine other than the
// Dispatcher's owner is a ProgrammerError: it is logged, not prevented.
func (t *Timer) Cancel() {
	if t.svc.disp.ownerGoroutine != 0 && goroutineID() != t.svc.disp.ownerGoroutine {
		t.svc.disp.logProgrammerError("Timer.Cancel", nil)
	}
	if t.entry.cancelled {
		return
	}
	t.entry.cancelled = true
	t.entry.callback = nil
	t.svc.wasted++
}

// nextInterval computes the jittered interval for the entry's next firing.
func (s *TimerService) nextInterval(e *timerEntry) time.Duration {
	if !e.hasJitter {
		return e.interval
	}
	return jittered(e.interval, e.jitter, s.rnd.Float64())
}

func (s *TimerService) insert(e *timerEntry) {
	e.seq = s.seq
	s.seq++
	heap.Push(&s.heap, e)
}

// dispatch drains all timers whose due has elapsed as of lastTS, following
// the firing/reschedule/compaction contract. stop reports whether a
// callback requested loop termination via break_loop.
func (s *TimerService) dispatch(lastTS MonoTime) (stop bool) {
	for s.heap.Len() > 0 {
		top := s.heap[0]
		if !top.cancelled && top.due.After(lastTS) {
			return false
		}

		e := heap.Pop(&s.heap).(*timerEntry)

		if e.cancelled {
			s.wasted--
			continue
		}

		periodic := e.remainingTicks == -1 || e.remainingTicks > 1
		if periodic {
			if e.remainingTicks > 0 {
				e.remainingTicks--
			}
			e.due = e.due.Offset(s.nextInterval(e))
			// Reinsert before invoking: a self-cancel from inside the
			// callback must tombstone this reinserted future firing, not
			// the one that already fired.
			s.insert(e)
		}

		cb := e.callback
		if cb != nil {
			if err := s.invoke(cb, lastTS); err != nil {
				if err == FatalExit {
					panic(FatalExit)
				}
			}
		}

		if !periodic {
			e.callback = nil
		}

		if s.disp.stopRequested.Load() {
			return true
		}
	}

	s.maybeCompact()
	return false
}

func (s *TimerService) invoke(cb func(MonoTime), ts MonoTime) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == FatalExit {
				err = FatalExit
				return
			}
			s.disp.logCallbackError("timer", r)
		}
	}()
	cb(ts)
	return nil
}

// maybeCompact implements the 50%-waste lazy compaction rule: after
// draining, if wasted*2 > heap.size(), sweep cancelled entries out and
// re-heapify.
func (s *TimerService) maybeCompact() {
	if s.wasted*2 <= s.heap.Len() {
		return
	}
	live := s.heap[:0]
	for _, e := range s.heap {
		if !e.cancelled {
			live = append(live, e)
		}
	}
	s.heap = live
	heap.Init(&s.heap)
	s.wasted = 0
}

// Len reports the current heap size, tombstones included.
func (s *TimerService) Len() int { return s.heap.Len() }
