package series

import (
	"math"
	"sort"
	"sync"
)

// PriceSample is one spot price observation.
type PriceSample struct {
	TimeMs int64
	Price  float64
}

// PredictionSample is one observed probability for the Up outcome.
type PredictionSample struct {
	TimeMs      int64
	Probability float64
}

// AlignedPoint pairs a spot price with the prediction value in effect at
// that moment. Prediction is nil when no prediction had been published
// yet at the point's timestamp.
type AlignedPoint struct {
	TimeMs     int64    `json:"timeMs"`
	SpotPrice  float64  `json:"spotPrice"`
	Prediction *float64 `json:"prediction"`
}

// Align merges the two series onto the price axis. Prices are walked in
// order and emitted at least minSpacingMs apart (the first is always
// emitted); each emitted point carries the most recent prediction at or
// before its timestamp, carried forward between prediction updates.
// Both inputs must be in ascending time order. Non-finite prices are
// skipped.
func Align(prices []PriceSample, predictions []PredictionSample, minSpacingMs int64) []AlignedPoint {
	out := make([]AlignedPoint, 0, len(prices))

	var lastEmit int64
	var current *float64
	pi := 0

	for _, p := range prices {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			continue
		}
		if len(out) > 0 && p.TimeMs-lastEmit < minSpacingMs {
			continue
		}
		for pi < len(predictions) && predictions[pi].TimeMs <= p.TimeMs {
			v := predictions[pi].Probability
			current = &v
			pi++
		}
		out = append(out, AlignedPoint{TimeMs: p.TimeMs, SpotPrice: p.Price, Prediction: current})
		lastEmit = p.TimeMs
	}

	return out
}

// Buffer accumulates the aligned history for the market currently on
// screen. Points are appended live as spot samples arrive; the
// prediction axis is kept sorted so late updates still land in the right
// place. The buffer is cleared and re-seeded whenever the tracked market
// changes.
type Buffer struct {
	mu          sync.Mutex
	minSpacing  int64
	capacity    int
	points      []AlignedPoint
	predictions []PredictionSample
	lastEmit    int64
}

// NewBuffer returns a buffer that emits points at least minSpacingMs
// apart and retains at most capacity of them (oldest dropped first).
// capacity <= 0 means unbounded.
func NewBuffer(minSpacingMs int64, capacity int) *Buffer {
	return &Buffer{minSpacing: minSpacingMs, capacity: capacity}
}

// Note records a prediction observation for carry-forward. Out-of-order
// timestamps are inserted in place; a duplicate timestamp replaces the
// earlier value.
func (b *Buffer) Note(p PredictionSample) {
	if math.IsNaN(p.Probability) || math.IsInf(p.Probability, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := sort.Search(len(b.predictions), func(i int) bool {
		return b.predictions[i].TimeMs >= p.TimeMs
	})
	if i < len(b.predictions) && b.predictions[i].TimeMs == p.TimeMs {
		b.predictions[i] = p
		return
	}
	b.predictions = append(b.predictions, PredictionSample{})
	copy(b.predictions[i+1:], b.predictions[i:])
	b.predictions[i] = p

	if b.capacity > 0 && len(b.predictions) > b.capacity {
		b.predictions = append(b.predictions[:0:0], b.predictions[len(b.predictions)-b.capacity:]...)
	}
}

// Observe appends an aligned point for the sample, subject to the
// minimum spacing. It reports whether a point was emitted.
func (b *Buffer) Observe(p PriceSample) bool {
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.points) > 0 && p.TimeMs-b.lastEmit < b.minSpacing {
		return false
	}

	point := AlignedPoint{TimeMs: p.TimeMs, SpotPrice: p.Price}
	if v, ok := b.lookup(p.TimeMs); ok {
		point.Prediction = &v
	}
	b.points = append(b.points, point)
	b.lastEmit = p.TimeMs

	if b.capacity > 0 && len(b.points) > b.capacity {
		b.points = append(b.points[:0:0], b.points[len(b.points)-b.capacity:]...)
	}
	return true
}

// lookup returns the most recent prediction at or before tsMs.
func (b *Buffer) lookup(tsMs int64) (float64, bool) {
	i := sort.Search(len(b.predictions), func(i int) bool {
		return b.predictions[i].TimeMs > tsMs
	})
	if i == 0 {
		return 0, false
	}
	return b.predictions[i-1].Probability, true
}

// Points returns a copy of the aligned history.
func (b *Buffer) Points() []AlignedPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AlignedPoint, len(b.points))
	copy(out, b.points)
	return out
}

// Len returns the number of retained points.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

// Load replaces the buffer contents with previously emitted points,
// used to resume a window after a restart. The prediction axis is
// rebuilt from the points' own carry-forward values so later samples
// keep aligning correctly.
func (b *Buffer) Load(points []AlignedPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.points = make([]AlignedPoint, 0, len(points))
	b.predictions = b.predictions[:0]
	b.lastEmit = 0

	for _, p := range points {
		if math.IsNaN(p.SpotPrice) || math.IsInf(p.SpotPrice, 0) {
			continue
		}
		b.points = append(b.points, p)
		b.lastEmit = p.TimeMs
		if p.Prediction != nil {
			b.predictions = append(b.predictions, PredictionSample{TimeMs: p.TimeMs, Probability: *p.Prediction})
		}
	}

	if b.capacity > 0 && len(b.points) > b.capacity {
		b.points = append(b.points[:0:0], b.points[len(b.points)-b.capacity:]...)
	}
}

// Reset clears the buffer and seeds the prediction axis, normally with a
// historical backfill for the market that just came on screen, so the
// first live points already have a carry-forward value to attach.
func (b *Buffer) Reset(seed []PredictionSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.points = nil
	b.lastEmit = 0
	b.predictions = make([]PredictionSample, 0, len(seed))
	for _, p := range seed {
		if math.IsNaN(p.Probability) || math.IsInf(p.Probability, 0) {
			continue
		}
		b.predictions = append(b.predictions, p)
	}
	sort.Slice(b.predictions, func(i, j int) bool {
		return b.predictions[i].TimeMs < b.predictions[j].TimeMs
	})
	if b.capacity > 0 && len(b.predictions) > b.capacity {
		b.predictions = append(b.predictions[:0:0], b.predictions[len(b.predictions)-b.capacity:]...)
	}
}
