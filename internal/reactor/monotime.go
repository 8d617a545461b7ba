package reactor

import "time"

// MonoTime is an opaque monotonic instant. It is backed by time.Time's
// monotonic reading, so subtraction and comparison remain correct across
// wall-clock adjustments (NTP step, DST) as long as both values came from
// the same process.
type MonoTime struct {
	t time.Time
}

// Now returns the current monotonic instant.
func Now() MonoTime {
	return MonoTime{t: time.Now()}
}

// Offset returns a new instant displaced by d (may be negative).
func (m MonoTime) Offset(d time.Duration) MonoTime {
	return MonoTime{t: m.t.Add(d)}
}

// GetOffsetCopy is an alias for Offset kept for symmetry with callers that
// read more naturally as "give me a copy offset by d".
func (m MonoTime) GetOffsetCopy(d time.Duration) MonoTime {
	return m.Offset(d)
}

// Before reports whether m occurs before o.
func (m MonoTime) Before(o MonoTime) bool { return m.t.Before(o.t) }

// After reports whether m occurs after o.
func (m MonoTime) After(o MonoTime) bool { return m.t.After(o.t) }

// Sub returns m - o as a duration.
func (m MonoTime) Sub(o MonoTime) time.Duration { return m.t.Sub(o.t) }

// SubSeconds returns m - o in fractional seconds, matching the data model's
// "subtraction yielding seconds as real" requirement.
func (m MonoTime) SubSeconds(o MonoTime) float64 { return m.Sub(o).Seconds() }

// IsZero reports whether m is the zero MonoTime.
func (m MonoTime) IsZero() bool { return m.t.IsZero() }

// Time exposes the underlying time.Time, for formatting/logging only; do not
// use it for ordering decisions across processes.
func (m MonoTime) Time() time.Time { return m.t }
