package reactor

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestSignalFanOut(t *testing.T) {
	d := New(200, nil)

	var flagA, flagB atomic.Bool
	subA := d.Signals.Register(syscall.SIGURG, func(syscall.Signal) { flagA.Store(true) })
	subB := d.Signals.Register(syscall.SIGURG, func(syscall.Signal) { flagB.Store(true) })

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGURG)
	}()

	if err := d.Loop(300*time.Millisecond, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}
	if !flagA.Load() || !flagB.Load() {
		t.Fatalf("expected both subscribers invoked, got A=%v B=%v", flagA.Load(), flagB.Load())
	}

	d.Signals.Unregister(subA)
	flagA.Store(false)
	flagB.Store(false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGURG)
	}()
	if err := d.Loop(300*time.Millisecond, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}
	if flagA.Load() {
		t.Fatalf("unregistered subscriber A should not have run")
	}
	if !flagB.Load() {
		t.Fatalf("subscriber B should still have run")
	}

	d.Signals.Unregister(subB)
	if _, ok := d.Signals.subs[syscall.SIGURG]; ok {
		t.Fatalf("expected no subscribers remaining for SIGURG")
	}
}

func TestCrossThreadWake(t *testing.T) {
	d := New(1, nil) // 1 Hz pacer: a full tick would take ~1s

	var ran atomic.Bool
	start := time.Now()

	go func() {
		time.Sleep(50 * time.Millisecond)
		d.Threads.CallFromThread(func() {
			ran.Store(true)
			d.BreakLoop()
		})
	}()

	if err := d.Loop(0, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}

	if !ran.Load() {
		t.Fatalf("expected cross-thread callback to run")
	}
	if elapsed := time.Since(start); elapsed > 1100*time.Millisecond {
		t.Fatalf("cross-thread wake did not pre-empt pacer sleep: %v", elapsed)
	}
}
