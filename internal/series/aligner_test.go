package series

import (
	"math"
	"testing"
)

func TestAlignCarriesForwardLastPrediction(t *testing.T) {
	prices := []PriceSample{
		{TimeMs: 0, Price: 100},
		{TimeMs: 5, Price: 101},
		{TimeMs: 10, Price: 102},
	}
	predictions := []PredictionSample{
		{TimeMs: 3, Probability: 0.5},
		{TimeMs: 8, Probability: 0.6},
	}

	got := Align(prices, predictions, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	if got[0].Prediction != nil {
		t.Errorf("point 0: prediction = %v, want nil (nothing published yet)", *got[0].Prediction)
	}
	if got[1].Prediction == nil || *got[1].Prediction != 0.5 {
		t.Errorf("point 1: prediction = %v, want 0.5", got[1].Prediction)
	}
	if got[2].Prediction == nil || *got[2].Prediction != 0.6 {
		t.Errorf("point 2: prediction = %v, want 0.6", got[2].Prediction)
	}

	for i, want := range []float64{100, 101, 102} {
		if got[i].SpotPrice != want {
			t.Errorf("point %d: spot = %v, want %v", i, got[i].SpotPrice, want)
		}
	}
}

func TestAlignMinSpacingDownsamples(t *testing.T) {
	prices := []PriceSample{
		{TimeMs: 0, Price: 1},
		{TimeMs: 1000, Price: 2},
		{TimeMs: 4000, Price: 3},
		{TimeMs: 5000, Price: 4},
		{TimeMs: 11000, Price: 5},
	}

	got := Align(prices, nil, 5000)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (0, 5000, 11000)", len(got))
	}
	if got[0].TimeMs != 0 || got[1].TimeMs != 5000 || got[2].TimeMs != 11000 {
		t.Errorf("emitted times = %d, %d, %d", got[0].TimeMs, got[1].TimeMs, got[2].TimeMs)
	}
}

func TestAlignSkipsNonFinitePrices(t *testing.T) {
	prices := []PriceSample{
		{TimeMs: 0, Price: 100},
		{TimeMs: 5, Price: math.NaN()},
		{TimeMs: 10, Price: 102},
	}

	got := Align(prices, nil, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].TimeMs != 10 {
		t.Errorf("second point at %d, want 10", got[1].TimeMs)
	}
}

func TestBufferObserveAndNote(t *testing.T) {
	b := NewBuffer(5000, 0)

	b.Note(PredictionSample{TimeMs: 3000, Probability: 0.5})
	if !b.Observe(PriceSample{TimeMs: 4000, Price: 100}) {
		t.Fatal("first sample should emit")
	}
	if b.Observe(PriceSample{TimeMs: 6000, Price: 101}) {
		t.Error("sample inside the spacing gap should not emit")
	}
	if !b.Observe(PriceSample{TimeMs: 9000, Price: 102}) {
		t.Fatal("sample past the spacing gap should emit")
	}

	points := b.Points()
	if len(points) != 2 {
		t.Fatalf("len = %d, want 2", len(points))
	}
	if points[0].Prediction == nil || *points[0].Prediction != 0.5 {
		t.Errorf("point 0 prediction = %v, want 0.5", points[0].Prediction)
	}
	if points[1].Prediction == nil || *points[1].Prediction != 0.5 {
		t.Errorf("point 1 should carry 0.5 forward, got %v", points[1].Prediction)
	}
}

func TestBufferOutOfOrderPredictions(t *testing.T) {
	b := NewBuffer(0, 0)

	b.Note(PredictionSample{TimeMs: 8000, Probability: 0.6})
	b.Note(PredictionSample{TimeMs: 3000, Probability: 0.5})

	b.Observe(PriceSample{TimeMs: 5000, Price: 100})
	points := b.Points()
	if points[0].Prediction == nil || *points[0].Prediction != 0.5 {
		t.Errorf("prediction = %v, want 0.5 (the late-arriving earlier sample)", points[0].Prediction)
	}

	// Same timestamp replaces the value.
	b.Note(PredictionSample{TimeMs: 3000, Probability: 0.55})
	b.Observe(PriceSample{TimeMs: 6000, Price: 101})
	points = b.Points()
	if p := points[1].Prediction; p == nil || *p != 0.55 {
		t.Errorf("prediction = %v, want 0.55 after replacement", p)
	}
}

func TestBufferResetSeedsBackfill(t *testing.T) {
	b := NewBuffer(0, 0)
	b.Note(PredictionSample{TimeMs: 1000, Probability: 0.9})
	b.Observe(PriceSample{TimeMs: 2000, Price: 100})

	seed := []PredictionSample{
		{TimeMs: 7000, Probability: 0.4},
		{TimeMs: 5000, Probability: 0.3}, // unsorted on purpose
	}
	b.Reset(seed)

	if b.Len() != 0 {
		t.Fatalf("points after reset = %d, want 0", b.Len())
	}

	b.Observe(PriceSample{TimeMs: 8000, Price: 200})
	points := b.Points()
	if len(points) != 1 {
		t.Fatalf("len = %d, want 1", len(points))
	}
	if p := points[0].Prediction; p == nil || *p != 0.4 {
		t.Errorf("prediction = %v, want 0.4 carried from the seeded backfill", p)
	}
}

func TestBufferLoadResumesHistory(t *testing.T) {
	b := NewBuffer(0, 0)

	p := 0.52
	b.Load([]AlignedPoint{
		{TimeMs: 1000, SpotPrice: 100},
		{TimeMs: 2000, SpotPrice: 101, Prediction: &p},
	})

	points := b.Points()
	if len(points) != 2 {
		t.Fatalf("len = %d, want 2", len(points))
	}
	if points[1].Prediction == nil || *points[1].Prediction != 0.52 {
		t.Errorf("loaded prediction = %v, want 0.52", points[1].Prediction)
	}

	// The carry-forward axis is rebuilt from the loaded points.
	b.Observe(PriceSample{TimeMs: 3000, Price: 102})
	points = b.Points()
	if got := points[2].Prediction; got == nil || *got != 0.52 {
		t.Errorf("prediction after load = %v, want carried 0.52", got)
	}
}

func TestBufferCapacityDropsOldest(t *testing.T) {
	b := NewBuffer(0, 3)
	for i := int64(1); i <= 5; i++ {
		b.Observe(PriceSample{TimeMs: i * 1000, Price: float64(i)})
	}

	points := b.Points()
	if len(points) != 3 {
		t.Fatalf("len = %d, want 3", len(points))
	}
	if points[0].TimeMs != 3000 || points[2].TimeMs != 5000 {
		t.Errorf("retained window = [%d..%d], want [3000..5000]", points[0].TimeMs, points[2].TimeMs)
	}
}

func TestBufferRejectsNonFinite(t *testing.T) {
	b := NewBuffer(0, 0)
	if b.Observe(PriceSample{TimeMs: 1000, Price: math.Inf(1)}) {
		t.Error("non-finite price should not emit")
	}
	b.Note(PredictionSample{TimeMs: 1000, Probability: math.NaN()})
	b.Observe(PriceSample{TimeMs: 2000, Price: 100})
	if p := b.Points()[0].Prediction; p != nil {
		t.Errorf("prediction = %v, want nil (NaN note dropped)", *p)
	}
}
