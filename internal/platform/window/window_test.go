package window

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestContains_DefaultWindow(t *testing.T) {
	g := NewGate(5, 10)
	for day := 1; day <= 28; day++ {
		got := g.Contains(date(2026, time.March, day))
		want := day >= 5 && day <= 10
		if got != want {
			t.Errorf("day %d: got %v, want %v", day, got, want)
		}
	}
}

func TestContains_Boundaries(t *testing.T) {
	g := NewGate(5, 10)

	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if !g.Contains(start) {
		t.Error("expected start day midnight to be inside the window")
	}

	end := time.Date(2026, time.March, 10, 23, 59, 59, 0, time.UTC)
	if !g.Contains(end) {
		t.Error("expected end day 23:59:59 to be inside the window")
	}

	after := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
	if g.Contains(after) {
		t.Error("expected day after window to be outside")
	}
}

func TestNext_SameMonth(t *testing.T) {
	g := NewGate(5, 10)

	// Before the window: current month's window.
	p := g.Next(date(2026, time.March, 2))
	if p.Start.Month() != time.March || p.Start.Day() != 5 {
		t.Errorf("expected start March 5, got %v", p.Start)
	}
	if p.End.Month() != time.March || p.End.Day() != 10 {
		t.Errorf("expected end March 10, got %v", p.End)
	}
	if p.End.Hour() != 23 || p.End.Minute() != 59 || p.End.Second() != 59 {
		t.Errorf("expected end inclusive through 23:59:59, got %v", p.End)
	}

	// Inside the window: still the current month's window.
	p = g.Next(date(2026, time.March, 7))
	if p.Start.Month() != time.March {
		t.Errorf("expected current window while inside it, got %v", p.Start)
	}
}

func TestNext_RollsToNextMonth(t *testing.T) {
	g := NewGate(5, 10)
	p := g.Next(date(2026, time.March, 15))
	if p.Start.Month() != time.April || p.Start.Day() != 5 {
		t.Errorf("expected start April 5, got %v", p.Start)
	}
}

func TestNext_YearRollover(t *testing.T) {
	g := NewGate(5, 10)
	p := g.Next(date(2025, time.December, 20))
	if p.Start.Year() != 2026 || p.Start.Month() != time.January || p.Start.Day() != 5 {
		t.Errorf("expected start Jan 5 2026, got %v", p.Start)
	}
	if p.End.Year() != 2026 || p.End.Month() != time.January || p.End.Day() != 10 {
		t.Errorf("expected end Jan 10 2026, got %v", p.End)
	}
}

func TestNext_LeapFebruary(t *testing.T) {
	g := NewGate(5, 10)

	// Leap year: Feb 29 exists and is past the window.
	p := g.Next(date(2028, time.February, 29))
	if p.Start.Month() != time.March || p.Start.Day() != 5 {
		t.Errorf("expected start March 5, got %v", p.Start)
	}

	// Inside February's window of a leap year.
	p = g.Next(date(2028, time.February, 6))
	if p.Start.Month() != time.February {
		t.Errorf("expected February window, got %v", p.Start)
	}
}

func TestNewGate_InvalidRangeFallsBack(t *testing.T) {
	for _, g := range []*Gate{NewGate(10, 5), NewGate(0, 10), NewGate(5, 30)} {
		start, end := g.Days()
		if start != 5 || end != 10 {
			t.Errorf("expected fallback 5-10, got %d-%d", start, end)
		}
	}
}
