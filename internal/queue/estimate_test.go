package queue

import (
	"strings"
	"testing"
)

func TestEstimateWindow(t *testing.T) {
	tests := []struct {
		name        string
		contacts    int
		rate        float64
		concurrency int
		want        Window
	}{
		{
			name:     "spec example 300 at 8cps",
			contacts: 300, rate: 8, concurrency: 80,
			want: Window{Seconds: 38, Minutes: 1},
		},
		{
			name:     "exact division",
			contacts: 80, rate: 8, concurrency: 80,
			want: Window{Seconds: 10, Minutes: 1},
		},
		{
			name:     "hour-scale batch",
			contacts: 30000, rate: 8, concurrency: 80,
			want: Window{Seconds: 3750, Minutes: 63, Hours: 2},
		},
		{
			name:     "concurrency caps the rate",
			contacts: 100, rate: 50, concurrency: 10,
			want: Window{Seconds: 10, Minutes: 1},
		},
		{
			name:     "zero contacts",
			contacts: 0, rate: 8, concurrency: 80,
			want: Window{},
		},
		{
			name:     "zero rate",
			contacts: 100, rate: 0, concurrency: 80,
			want: Window{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateWindow(tt.contacts, tt.rate, tt.concurrency)
			if got != tt.want {
				t.Errorf("EstimateWindow(%d, %v, %d) = %+v, want %+v",
					tt.contacts, tt.rate, tt.concurrency, got, tt.want)
			}
		})
	}
}

func TestEstimateWindow_HoursOnlyWhenLong(t *testing.T) {
	w := EstimateWindow(300, 8, 80)
	if w.Hours != 0 {
		t.Errorf("sub-hour window should leave Hours unset, got %d", w.Hours)
	}
}

func TestTimingMessage_Threshold(t *testing.T) {
	if msg := TimingMessage(300); msg != "" {
		t.Errorf("boundary count should produce no advisory, got %q", msg)
	}
	if msg := TimingMessage(301); msg == "" {
		t.Error("count above threshold should produce an advisory")
	}
	if msg := TimingMessage(50); msg != "" {
		t.Errorf("small batch should produce no advisory, got %q", msg)
	}
}

func TestTimingMessageFor_UsesProvidedWindow(t *testing.T) {
	// A slow configured rate: 600 contacts at 1 cps is a 10 minute
	// window, where the default rates would say 75 seconds.
	w := EstimateWindow(600, 1, 80)
	msg := TimingMessageFor(600, 300, w)
	if msg == "" {
		t.Fatal("expected advisory above threshold")
	}
	if want := "10 minutes"; !strings.Contains(msg, want) {
		t.Errorf("advisory %q should mention %q", msg, want)
	}

	if msg := TimingMessageFor(300, 300, w); msg != "" {
		t.Errorf("boundary is strictly greater-than, got %q", msg)
	}
}

func TestTimingMessageAt_CustomThreshold(t *testing.T) {
	if msg := TimingMessageAt(100, 50); msg == "" {
		t.Error("expected advisory above custom threshold")
	}
	if msg := TimingMessageAt(50, 50); msg != "" {
		t.Errorf("boundary is strictly greater-than, got %q", msg)
	}
}
