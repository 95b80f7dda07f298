package device

// OrientationSensor reads the raw tilt axis used for the flip trigger.
type OrientationSensor interface {
	ReadOrientation() (int, error)
}

// LightSensor reads the ambient light level.
type LightSensor interface {
	ReadLight() (int, error)
}

// OrientationFunc adapts a function to OrientationSensor.
type OrientationFunc func() (int, error)

func (f OrientationFunc) ReadOrientation() (int, error) { return f() }

// LightFunc adapts a function to LightSensor.
type LightFunc func() (int, error)

func (f LightFunc) ReadLight() (int, error) { return f() }
