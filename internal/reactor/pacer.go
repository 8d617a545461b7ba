package reactor

import (
	"sync"
	"time"
)

// PeriodicPacer is the cooperative sleep-until-next-tick primitive at the
// bottom of the Dispatcher loop. It supports frequency bands so a caller
// can switch cadence (e.g. GClector accelerating from 60s to 1s once a
// restart is latched) without tearing down and rebuilding the pacer.
type PeriodicPacer struct {
	mu      sync.Mutex
	bands   []time.Duration
	current int

	wakeCh chan struct{}
}

// NewPeriodicPacer constructs a pacer whose default band runs at hz. hz
// defaults to 100 if <= 0, matching the 100 Hz constructor default.
func NewPeriodicPacer(hz float64) *PeriodicPacer {
	if hz <= 0 {
		hz = 100
	}
	return &PeriodicPacer{
		bands:  []time.Duration{periodFor(hz)},
		wakeCh: make(chan struct{}, 1),
	}
}

func periodFor(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// AddBand registers a new frequency band and returns its id.
func (p *PeriodicPacer) AddBand(hz float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bands = append(p.bands, periodFor(hz))
	return len(p.bands) - 1
}

// UseBand switches the active band. O(1).
func (p *PeriodicPacer) UseBand(bandID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bandID >= 0 && bandID < len(p.bands) {
		p.current = bandID
	}
}

// Procrastinate blocks until the next tick in the current band, or until a
// wake is pending/arrives, whichever comes first.
func (p *PeriodicPacer) Procrastinate() {
	p.mu.Lock()
	period := p.bands[p.current]
	p.mu.Unlock()

	// A wake already queued must return immediately, even though the tick
	// has not elapsed: select has no priority guarantee between two ready
	// channels, so this fast path is checked explicitly before arming the
	// timer.
	select {
	case <-p.wakeCh:
		return
	default:
	}

	t := time.NewTimer(period)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.wakeCh:
	}
}

// wake pre-empts an in-progress or future Procrastinate call. Non-blocking:
// a wake already pending is coalesced, since Procrastinate only needs to
// know "something happened", not how many times.
func (p *PeriodicPacer) wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}
