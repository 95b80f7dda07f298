package server

import "time"

// DayWatcher detects local day boundaries.
//
// Check reports true once for each change of local date, at the first check
// after midnight. Times are compared at minute resolution.
type DayWatcher struct {
	loc  *time.Location
	year int
	day  int
}

// NewDayWatcher starts watching from the day containing now. A nil loc
// uses time.Local.
func NewDayWatcher(now time.Time, loc *time.Location) *DayWatcher {
	if loc == nil {
		loc = time.Local
	}
	w := &DayWatcher{loc: loc}
	w.year, w.day = w.date(now)
	return w
}

func (w *DayWatcher) date(t time.Time) (int, int) {
	local := t.In(w.loc).Truncate(time.Minute)
	return local.Year(), local.YearDay()
}

// Check reports whether a new local day started since the last boundary.
func (w *DayWatcher) Check(now time.Time) bool {
	year, day := w.date(now)
	if year == w.year && day == w.day {
		return false
	}
	// clock set backwards: follow it without firing
	if year < w.year || (year == w.year && day < w.day) {
		w.year, w.day = year, day
		return false
	}
	w.year, w.day = year, day
	return true
}
