package window

import "time"

// Window is one epoch-aligned slot of the fixed market cadence.
type Window struct {
	StartMs int64
	EndMs   int64
}

// Current returns the window covering nowMs for the given duration.
// The start is floored to a multiple of the duration, so every process
// computes the same boundaries regardless of when it was started.
func Current(nowMs, durationMs int64) Window {
	if durationMs <= 0 {
		return Window{}
	}
	start := (nowMs / durationMs) * durationMs
	return Window{StartMs: start, EndMs: start + durationMs}
}

// CurrentAt is Current for wall-clock inputs.
func CurrentAt(now time.Time, d time.Duration) Window {
	return Current(now.UnixMilli(), d.Milliseconds())
}

// Remaining returns the milliseconds until endMs, clamped at zero so a
// cross of the boundary never produces a negative countdown.
func Remaining(nowMs, endMs int64) int64 {
	if endMs <= nowMs {
		return 0
	}
	return endMs - nowMs
}

// RemainingMinutes returns Remaining as fractional minutes.
func RemainingMinutes(nowMs, endMs int64) float64 {
	return float64(Remaining(nowMs, endMs)) / 60000.0
}

// Contains reports whether tsMs falls inside the window.
func (w Window) Contains(tsMs int64) bool {
	return tsMs >= w.StartMs && tsMs < w.EndMs
}

// StartSecond returns the window start in unix seconds, the unit market
// slugs are keyed by.
func (w Window) StartSecond() int64 {
	return w.StartMs / 1000
}

// Next returns the window immediately after w.
func (w Window) Next() Window {
	d := w.EndMs - w.StartMs
	return Window{StartMs: w.EndMs, EndMs: w.EndMs + d}
}
