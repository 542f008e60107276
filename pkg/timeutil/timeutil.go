// Package timeutil holds time helpers for assessment timestamps and the
// residency academic calendar. All timestamps are stored and compared in UTC.
package timeutil

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock abstracts time.Now so handlers can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant until moved.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t.UTC()}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

// Accepted input layouts, tried in order. Clients send either a full
// timestamp or just the observation date.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses value in any accepted layout. Values without a zone are UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// FormatTimestamp renders t as RFC3339 in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// AcademicYearStartMonth is when PGY levels advance.
const AcademicYearStartMonth = time.July

// AcademicYearStart returns July 1 (UTC) of the academic year containing t.
func AcademicYearStart(t time.Time) time.Time {
	t = t.UTC()
	year := t.Year()
	if t.Month() < AcademicYearStartMonth {
		year--
	}
	return time.Date(year, AcademicYearStartMonth, 1, 0, 0, 0, 0, time.UTC)
}

// AcademicYearLabel returns e.g. "2024-2025" for any t in that academic year.
func AcademicYearLabel(t time.Time) string {
	start := AcademicYearStart(t)
	return fmt.Sprintf("%d-%d", start.Year(), start.Year()+1)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b (negative if b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / 24)
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
