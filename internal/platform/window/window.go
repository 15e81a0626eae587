// Package window implements the legal submission period gate. Monthly report
// batches may only be promoted to the submission queue between a configured
// start and end day of each month (default 5th through 10th, inclusive).
package window

import "time"

// Period is one legal submission window. End is inclusive through 23:59:59.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Gate decides whether a given instant falls inside the submission window.
// It is pure and carries no state beyond its configured day range.
type Gate struct {
	startDay int
	endDay   int
}

// NewGate creates a Gate for the given inclusive day-of-month range.
// Out-of-range values fall back to the 5-10 default.
func NewGate(startDay, endDay int) *Gate {
	if startDay < 1 || endDay > 28 || startDay > endDay {
		startDay, endDay = 5, 10
	}
	return &Gate{startDay: startDay, endDay: endDay}
}

// Contains reports whether t falls inside the submission window.
func (g *Gate) Contains(t time.Time) bool {
	day := t.Day()
	return day >= g.startDay && day <= g.endDay
}

// Next returns the submission period relevant to t: the current month's
// window when t is on or before its end day, otherwise next month's.
func (g *Gate) Next(t time.Time) Period {
	year, month := t.Year(), t.Month()
	if t.Day() > g.endDay {
		// time.Date normalizes month 13 to January of the next year.
		month++
	}
	loc := t.Location()
	return Period{
		Start: time.Date(year, month, g.startDay, 0, 0, 0, 0, loc),
		End:   time.Date(year, month, g.endDay, 23, 59, 59, 0, loc),
	}
}

// Days returns the configured inclusive day range.
func (g *Gate) Days() (start, end int) {
	return g.startDay, g.endDay
}
