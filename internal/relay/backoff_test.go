package relay

import (
	"testing"
	"time"
)

func TestConfig_NextRetryAt_Linear(t *testing.T) {
	cfg := Config{
		InitialInterval:   5 * time.Second,
		IntervalIncrement: 5 * time.Second,
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		retryCount int
		wantDelay  time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 15 * time.Second},
		{5, 30 * time.Second},
	}

	for _, tt := range tests {
		got := cfg.NextRetryAt(now, tt.retryCount)
		want := now.Add(tt.wantDelay)
		if !got.Equal(want) {
			t.Errorf("retry_count=%d: expected %v, got %v", tt.retryCount, want, got)
		}
	}
}

func TestConfig_NextRetryAt_ZeroIncrement(t *testing.T) {
	cfg := Config{InitialInterval: 2 * time.Second}
	now := time.Now()

	// With no increment every retry waits the initial interval
	for _, rc := range []int{0, 3, 10} {
		got := cfg.NextRetryAt(now, rc)
		if !got.Equal(now.Add(2 * time.Second)) {
			t.Errorf("retry_count=%d: expected fixed 2s delay, got %v", rc, got.Sub(now))
		}
	}
}
