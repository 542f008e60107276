package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-10-15T14:30:00Z":          time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
		"2024-10-15T16:30:00+02:00":     time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
		"2024-10-15T14:30:00.123Z":      time.Date(2024, 10, 15, 14, 30, 0, 123000000, time.UTC),
		"2024-10-15T14:30:00":           time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
		"2024-10-15":                    time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC),
		"  2024-10-15 14:30:00  ":       time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: got %s", in, got)
	}

	_, err := ParseTimestamp("")
	assert.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestAcademicYear(t *testing.T) {
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		AcademicYearStart(time.Date(2025, 1, 20, 11, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		AcademicYearStart(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-2025", AcademicYearLabel(time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestDaysBetweenAndMax(t *testing.T) {
	a := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, DaysBetween(a, b))
	assert.Equal(t, b, MaxTime(a, b))
	assert.Equal(t, "2025-01-02T01:00:00.000Z", FormatTimestamp(b))
}
