package reactor

import (
	"testing"
	"time"
)

func TestPacerBandSwitch(t *testing.T) {
	p := NewPeriodicPacer(1000) // default band: 1ms ticks

	fast := p.AddBand(1000)
	slow := p.AddBand(10) // 100ms ticks
	p.UseBand(slow)

	start := time.Now()
	p.Procrastinate()
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected slow-band tick, got %v", elapsed)
	}

	p.UseBand(fast)
	start = time.Now()
	p.Procrastinate()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected fast-band tick, got %v", elapsed)
	}
}

func TestPacerWakePreemptsSleep(t *testing.T) {
	p := NewPeriodicPacer(1) // 1s default tick
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.wake()
	}()
	start := time.Now()
	p.Procrastinate()
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("wake did not pre-empt sleep: %v", elapsed)
	}
}
