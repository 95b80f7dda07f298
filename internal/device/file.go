package device

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileSensor reads a single integer from a file on every call, the way
// Linux IIO drivers expose raw channels under /sys/bus/iio/devices.
type FileSensor struct {
	Path string
}

func (s FileSensor) read() (int, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read sensor %s: %w", s.Path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse sensor %s: %w", s.Path, err)
	}
	return v, nil
}

// ReadOrientation implements OrientationSensor.
func (s FileSensor) ReadOrientation() (int, error) { return s.read() }

// ReadLight implements LightSensor.
func (s FileSensor) ReadLight() (int, error) { return s.read() }
