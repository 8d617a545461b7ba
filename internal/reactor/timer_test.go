package reactor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOneShotTimerFiresOnce(t *testing.T) {
	d := New(100, nil)
	var fires atomic.Int32
	var fired time.Time
	start := time.Now()

	timer := d.Timers.Register(func() { fires.Add(1); fired = time.Now() }, 100*time.Millisecond)
	timer.Arm()

	if err := d.Loop(time.Second, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}

	if got := fires.Load(); got != 1 {
		t.Fatalf("expected 1 firing, got %d", got)
	}
	elapsed := fired.Sub(start)
	if elapsed < 90*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Fatalf("fired outside expected window: %v", elapsed)
	}
}

func TestPeriodicTimerWithJitter(t *testing.T) {
	d := New(200, nil)
	var fires atomic.Int32

	timer := d.Timers.RegisterTS(func(ts MonoTime) { fires.Add(1) }, 50*time.Millisecond, WithTicks(5), WithJitter(0.1))
	timer.Arm()

	if err := d.Loop(2*time.Second, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}

	if got := fires.Load(); got != 5 {
		t.Fatalf("expected exactly 5 firings, got %d", got)
	}
}

func TestCancelInsideCallback(t *testing.T) {
	d := New(200, nil)
	var fires atomic.Int32
	var self *Timer

	self = d.Timers.Register(func() {
		n := fires.Add(1)
		if n == 3 {
			self.Cancel()
		}
	}, 20*time.Millisecond, WithTicks(-1))
	self.Arm()

	if err := d.Loop(500*time.Millisecond, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}

	if got := fires.Load(); got != 3 {
		t.Fatalf("expected exactly 3 firings, got %d", got)
	}
	if d.Timers.Len() != 0 {
		t.Fatalf("expected heap compacted to 0 after loop exit, got %d", d.Timers.Len())
	}
}

func TestTimerHeapCompactionBound(t *testing.T) {
	d := New(1000, nil)

	var timers []*Timer
	for i := 0; i < 10; i++ {
		timer := d.Timers.Register(func() {}, time.Hour)
		timer.Arm()
		timers = append(timers, timer)
	}
	for _, timer := range timers[:6] {
		timer.Cancel()
	}

	// Force a compaction pass without a full loop iteration.
	d.Timers.maybeCompact()

	if live := d.Timers.Len(); live != 4 {
		t.Fatalf("expected 4 live entries after compaction, got %d", live)
	}
}
