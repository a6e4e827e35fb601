package window

import (
	"testing"
	"time"
)

func TestCurrent(t *testing.T) {
	tests := []struct {
		name       string
		nowMs      int64
		durationMs int64
		want       Window
	}{
		{
			name:       "mid window",
			nowMs:      930000,
			durationMs: 900000,
			want:       Window{StartMs: 900000, EndMs: 1800000},
		},
		{
			name:       "exact boundary starts a new window",
			nowMs:      1800000,
			durationMs: 900000,
			want:       Window{StartMs: 1800000, EndMs: 2700000},
		},
		{
			name:       "one ms before boundary",
			nowMs:      1799999,
			durationMs: 900000,
			want:       Window{StartMs: 900000, EndMs: 1800000},
		},
		{
			name:       "zero duration yields empty window",
			nowMs:      930000,
			durationMs: 0,
			want:       Window{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Current(tt.nowMs, tt.durationMs)
			if got != tt.want {
				t.Errorf("Current(%d, %d) = %+v, want %+v", tt.nowMs, tt.durationMs, got, tt.want)
			}
		})
	}
}

func TestCurrentAt(t *testing.T) {
	now := time.UnixMilli(930000)
	got := CurrentAt(now, 15*time.Minute)
	want := Window{StartMs: 900000, EndMs: 1800000}
	if got != want {
		t.Errorf("CurrentAt = %+v, want %+v", got, want)
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name  string
		nowMs int64
		endMs int64
		want  int64
	}{
		{name: "inside window", nowMs: 930000, endMs: 1800000, want: 870000},
		{name: "at end", nowMs: 1800000, endMs: 1800000, want: 0},
		{name: "past end clamps to zero", nowMs: 1900000, endMs: 1800000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(tt.nowMs, tt.endMs); got != tt.want {
				t.Errorf("Remaining(%d, %d) = %d, want %d", tt.nowMs, tt.endMs, got, tt.want)
			}
		})
	}
}

func TestRemainingMinutes(t *testing.T) {
	got := RemainingMinutes(930000, 1800000)
	if got != 14.5 {
		t.Errorf("RemainingMinutes = %v, want 14.5", got)
	}
	if got := RemainingMinutes(2000000, 1800000); got != 0 {
		t.Errorf("RemainingMinutes past end = %v, want 0", got)
	}
}

func TestWindowHelpers(t *testing.T) {
	w := Window{StartMs: 900000, EndMs: 1800000}

	if !w.Contains(900000) {
		t.Error("window should contain its own start")
	}
	if w.Contains(1800000) {
		t.Error("window end is exclusive")
	}
	if got := w.StartSecond(); got != 900 {
		t.Errorf("StartSecond = %d, want 900", got)
	}

	next := w.Next()
	if next.StartMs != 1800000 || next.EndMs != 2700000 {
		t.Errorf("Next = %+v", next)
	}
}
