package hw

import (
	"sync"
	"time"
)

// Mock implements every hardware interface and records commands for
// assertions. Safe for concurrent use.
type Mock struct {
	mu sync.Mutex

	angle      float64
	AngleCalls []float64

	laserOn    bool
	LaserCalls []bool
	// OnSpans records every on/off pair as a duration, appended at
	// laser-off time.
	OnSpans   []time.Duration
	laserOnAt time.Time

	ledColor LEDColor
	LEDCalls []LEDColor

	buttonCh chan struct{}

	// Fail, when set, is returned from every Set call. Used to test
	// hardware fault paths.
	Fail error
}

// NewMock returns a fresh mock with a buffered button channel.
func NewMock() *Mock {
	return &Mock{buttonCh: make(chan struct{}, 8)}
}

// SetAngle implements Servo.
func (m *Mock) SetAngle(deg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.angle = deg
	m.AngleCalls = append(m.AngleCalls, deg)
	return nil
}

// Angle implements Servo.
func (m *Mock) Angle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.angle
}

// SetOn implements Laser.
func (m *Mock) SetOn(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if on && !m.laserOn {
		m.laserOnAt = time.Now()
	}
	if !on && m.laserOn {
		m.OnSpans = append(m.OnSpans, time.Since(m.laserOnAt))
	}
	m.laserOn = on
	m.LaserCalls = append(m.LaserCalls, on)
	return nil
}

// IsOn implements Laser.
func (m *Mock) IsOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.laserOn
}

// Edges implements Button.
func (m *Mock) Edges() <-chan struct{} {
	return m.buttonCh
}

// Press simulates one debounced button press.
func (m *Mock) Press() {
	select {
	case m.buttonCh <- struct{}{}:
	default:
	}
}

// SetColor implements LED.
func (m *Mock) SetColor(c LEDColor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.ledColor = c
	m.LEDCalls = append(m.LEDCalls, c)
	return nil
}

// Color returns the current LED state.
func (m *Mock) Color() LEDColor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledColor
}

// LaserOn reports whether the laser is currently on (assertion helper,
// same as IsOn but named for test readability).
func (m *Mock) LaserOn() bool {
	return m.IsOn()
}
