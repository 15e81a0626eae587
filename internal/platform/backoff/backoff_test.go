package backoff

import (
	"testing"
	"time"
)

func TestDelay_ExponentialBounds(t *testing.T) {
	s := NewScheduler(30*time.Second, 5*time.Minute)

	for retry := 0; retry <= 10; retry++ {
		for i := 0; i < 50; i++ {
			d := s.Delay(retry)

			lower := 30 * time.Second
			for j := 0; j < retry; j++ {
				lower *= 2
			}
			if lower > 5*time.Minute {
				lower = 5 * time.Minute
			}

			if d < lower {
				t.Fatalf("retry %d: delay %v below lower bound %v", retry, d, lower)
			}
			if d > 5*time.Minute {
				t.Fatalf("retry %d: delay %v exceeds cap", retry, d)
			}
			if upper := lower + time.Second; d > upper && lower != 5*time.Minute {
				t.Fatalf("retry %d: delay %v exceeds %v", retry, d, upper)
			}
		}
	}
}

func TestDelay_FirstRetryNearBase(t *testing.T) {
	s := NewScheduler(30*time.Second, 5*time.Minute)
	d := s.Delay(0)
	if d < 30*time.Second || d > 31*time.Second {
		t.Errorf("expected first delay in [30s,31s], got %v", d)
	}
}

func TestDelay_CapReached(t *testing.T) {
	s := NewScheduler(30*time.Second, 5*time.Minute)
	// 30s * 2^4 = 480s > 300s cap.
	if d := s.Delay(4); d != 5*time.Minute {
		t.Errorf("expected cap 5m, got %v", d)
	}
	if d := s.Delay(100); d != 5*time.Minute {
		t.Errorf("expected cap 5m for large retry count, got %v", d)
	}
}

func TestDelay_JitterVaries(t *testing.T) {
	s := NewScheduler(30*time.Second, 5*time.Minute)
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[s.Delay(0)] = true
	}
	if len(seen) < 2 {
		t.Error("expected jitter to produce varying delays")
	}
}

func TestDelay_NegativeRetryCount(t *testing.T) {
	s := NewScheduler(30*time.Second, 5*time.Minute)
	d := s.Delay(-3)
	if d < 30*time.Second || d > 31*time.Second {
		t.Errorf("negative retry count should behave like 0, got %v", d)
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(0, 0)
	if s.base != DefaultBaseDelay || s.cap != DefaultCapDelay {
		t.Errorf("expected defaults %v/%v, got %v/%v",
			DefaultBaseDelay, DefaultCapDelay, s.base, s.cap)
	}
}

func TestNextAttempt(t *testing.T) {
	s := NewScheduler(30*time.Second, 5*time.Minute)
	now := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	at := s.NextAttempt(now, 0)
	if at.Before(now.Add(30*time.Second)) || at.After(now.Add(31*time.Second)) {
		t.Errorf("expected next attempt 30-31s after now, got %v", at)
	}
}
