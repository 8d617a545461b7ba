package reactor

import (
	"errors"
	"testing"
	"time"
)

func TestLoopSingleton(t *testing.T) {
	d := New(100, nil)
	done := make(chan struct{})

	go func() {
		_ = d.Loop(200*time.Millisecond, 0)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := d.Loop(0, 0); !errors.Is(err, errAlreadyRunning) {
		t.Fatalf("expected errAlreadyRunning, got %v", err)
	}
	<-done
}

func TestLoopTimeoutReturnsWithoutStop(t *testing.T) {
	d := New(100, nil)
	start := time.Now()
	if err := d.Loop(50*time.Millisecond, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("loop returned too early: %v", elapsed)
	}
	if d.stopRequested.Load() {
		t.Fatalf("stopRequested should be cleared on timeout return")
	}
}

func TestFatalExitPropagates(t *testing.T) {
	d := New(200, nil)
	timer := d.Timers.Register(func() { panic(FatalExit) }, 10*time.Millisecond)
	timer.Arm()

	err := d.Loop(time.Second, 0)
	if !errors.Is(err, FatalExit) {
		t.Fatalf("expected FatalExit, got %v", err)
	}
}
