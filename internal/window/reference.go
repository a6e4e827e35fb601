package window

import (
	"math"
	"sync"
)

// ReferenceTracker pins the anchor price for the window being tracked.
// The first price observed after a window opens (or after the tracked
// market changes) is captured and held until the next rollover, so the
// "price to beat" stays stable for the whole window.
type ReferenceTracker struct {
	mu          sync.Mutex
	price       float64
	marketID    string
	windowStart int64
	captured    bool
}

// NewReferenceTracker returns an empty tracker.
func NewReferenceTracker() *ReferenceTracker {
	return &ReferenceTracker{}
}

// Capture records price as the anchor for (marketID, windowStart). It
// returns true when a new anchor was captured and false when the call was
// a no-op: the same window and market are already anchored, or the price
// is not a finite number.
func (t *ReferenceTracker) Capture(price float64, marketID string, windowStart int64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.captured && t.windowStart == windowStart && t.marketID == marketID {
		return false
	}

	t.price = price
	t.marketID = marketID
	t.windowStart = windowStart
	t.captured = true
	return true
}

// Value returns the captured anchor price, if any.
func (t *ReferenceTracker) Value() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.price, t.captured
}

// Anchor returns the identity the current value was captured for.
func (t *ReferenceTracker) Anchor() (marketID string, windowStart int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.marketID, t.windowStart, t.captured
}

// Reset clears the tracker back to its empty state.
func (t *ReferenceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.price = 0
	t.marketID = ""
	t.windowStart = 0
	t.captured = false
}
