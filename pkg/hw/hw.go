// Package hw defines the hardware boundary of the device.
//
// The interfaces are deliberately narrow and composed per consumer: the
// actuator needs Servo and Laser, the control surface needs Button and
// LED. Production uses the sysfs implementations; tests and bench setups
// use Mock, which records every command.
//
// Exactly one writer exists per device: the actuator owns the servo and
// laser, the arm-state watcher owns the LED and reads the button.
package hw

// Servo positions the laser mount. Angles are degrees from center;
// implementations clamp to their mechanical range.
type Servo interface {
	// SetAngle commands the servo to the given angle.
	SetAngle(deg float64) error
	// Angle returns the last commanded angle.
	Angle() float64
}

// Laser switches the deterrent emitter. Implementations must be safe to
// call redundantly (off when already off).
type Laser interface {
	SetOn(on bool) error
	IsOn() bool
}

// Button exposes the physical arm/disarm toggle. Edges returns a channel
// that delivers one value per debounced press.
type Button interface {
	Edges() <-chan struct{}
}

// LED drives the status indicator.
type LED interface {
	SetColor(c LEDColor) error
}

// LEDColor is the status LED state.
type LEDColor int

// LED states: green means armed, red means disarmed, blinking marks an
// in-flight deterrence.
const (
	LEDOff LEDColor = iota
	LEDGreen
	LEDRed
	LEDGreenBlink
)

func (c LEDColor) String() string {
	switch c {
	case LEDOff:
		return "off"
	case LEDGreen:
		return "green"
	case LEDRed:
		return "red"
	case LEDGreenBlink:
		return "green-blink"
	default:
		return "unknown"
	}
}
