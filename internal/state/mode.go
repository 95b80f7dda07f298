package state

import "fmt"

// Mode is the session state machine's current value.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeFocusing
	ModeBreak
	ModePaused
	ModeWithered
)

var modeNames = [...]string{
	ModeIdle:     "idle",
	ModeFocusing: "focusing",
	ModeBreak:    "break",
	ModePaused:   "paused",
	ModeWithered: "withered",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// Running reports whether the timer counts down in this mode.
func (m Mode) Running() bool {
	return m == ModeFocusing || m == ModeBreak
}

// MarshalText encodes the mode as its lower-case name.
func (m Mode) MarshalText() ([]byte, error) {
	if int(m) >= len(modeNames) {
		return nil, fmt.Errorf("unknown mode %d", uint8(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText parses a lower-case mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, ok := ParseMode(string(text))
	if !ok {
		return fmt.Errorf("unknown mode %q", text)
	}
	*m = mode
	return nil
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), true
		}
	}
	return ModeIdle, false
}
