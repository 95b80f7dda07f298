package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayWatcher_FiresOncePerMidnight(t *testing.T) {
	start := time.Date(2025, time.March, 3, 23, 58, 0, 0, time.UTC)
	w := NewDayWatcher(start, time.UTC)

	assert.False(t, w.Check(start.Add(time.Minute)))
	assert.True(t, w.Check(start.Add(2*time.Minute)), "00:00 next day")
	assert.False(t, w.Check(start.Add(3*time.Minute)), "same day again")
	assert.False(t, w.Check(start.Add(10*time.Hour)))
}

func TestDayWatcher_SkippedDaysFireOnce(t *testing.T) {
	start := time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)
	w := NewDayWatcher(start, time.UTC)

	assert.True(t, w.Check(start.Add(72*time.Hour)))
	assert.False(t, w.Check(start.Add(73*time.Hour)))
}

func TestDayWatcher_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// 21:30 UTC is 23:30 local
	start := time.Date(2025, time.March, 3, 21, 30, 0, 0, time.UTC)
	w := NewDayWatcher(start, loc)

	assert.True(t, w.Check(start.Add(30*time.Minute)), "22:00 UTC is local midnight")
}

func TestDayWatcher_YearBoundary(t *testing.T) {
	start := time.Date(2024, time.December, 31, 23, 59, 0, 0, time.UTC)
	w := NewDayWatcher(start, time.UTC)

	assert.True(t, w.Check(start.Add(time.Minute)))
}

func TestDayWatcher_ClockSetBackwards(t *testing.T) {
	start := time.Date(2025, time.March, 3, 0, 10, 0, 0, time.UTC)
	w := NewDayWatcher(start, time.UTC)

	assert.False(t, w.Check(start.Add(-time.Hour)), "going back a day does not close it")
	assert.True(t, w.Check(start), "coming forward again does")
}
