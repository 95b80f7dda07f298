package device

import "time"

// FlipDetector turns raw orientation readings into debounced trigger
// transitions.
//
// A reading at or above high asserts the trigger, a reading at or below low
// releases it, and anything in between keeps the previous raw state. A new
// raw state must hold for the debounce period before it is reported.
type FlipDetector struct {
	low, high int
	debounce  time.Duration

	asserted bool
	raw      bool
	since    time.Time
}

// NewFlipDetector creates a detector in the released state.
func NewFlipDetector(low, high int, debounce time.Duration) *FlipDetector {
	if high < low {
		low, high = high, low
	}
	return &FlipDetector{low: low, high: high, debounce: debounce}
}

// Asserted reports the debounced trigger state.
func (d *FlipDetector) Asserted() bool { return d.asserted }

// Update feeds one reading taken at now. It returns the debounced state and
// whether it changed with this reading.
func (d *FlipDetector) Update(value int, now time.Time) (asserted, changed bool) {
	raw := d.raw
	switch {
	case value >= d.high:
		raw = true
	case value <= d.low:
		raw = false
	}

	if raw != d.raw {
		d.raw = raw
		d.since = now
	}
	if d.raw == d.asserted {
		return d.asserted, false
	}
	if now.Sub(d.since) < d.debounce {
		return d.asserted, false
	}
	d.asserted = d.raw
	return d.asserted, true
}
