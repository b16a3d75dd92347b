package hw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apisguard/edge/internal/log"
)

// Sysfs implementations for the Pi build. The servo is a standard 50 Hz
// hobby servo on a PWM channel; laser, LED and button are plain GPIO
// lines. Everything goes through the kernel's sysfs interface so no cgo
// or GPIO library is needed.

const (
	pwmPeriodNs = 20_000_000 // 50 Hz servo frame

	// Pulse widths for the mechanical extremes. 1.5 ms is center.
	pulseCenterNs   = 1_500_000
	pulsePerDegreeN = 11_111 // ~1 ms across 90 degrees
)

// SysfsServo drives a hobby servo through /sys/class/pwm.
type SysfsServo struct {
	mu       sync.Mutex
	dir      string // e.g. /sys/class/pwm/pwmchip0/pwm0
	rangeDeg float64
	angle    float64
}

// NewSysfsServo opens the PWM channel and centers the servo.
// rangeDeg bounds commanded angles to +/- that many degrees.
func NewSysfsServo(dir string, rangeDeg float64) (*SysfsServo, error) {
	s := &SysfsServo{dir: dir, rangeDeg: rangeDeg}
	if err := writeSysfs(filepath.Join(dir, "period"), strconv.Itoa(pwmPeriodNs)); err != nil {
		return nil, fmt.Errorf("pwm period: %w", err)
	}
	if err := writeSysfs(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, fmt.Errorf("pwm enable: %w", err)
	}
	if err := s.SetAngle(0); err != nil {
		return nil, err
	}
	return s, nil
}

// SetAngle implements Servo. Angles beyond the mechanical range are
// clamped, not rejected: the caller's aim point is best-effort at the
// edge of the field of view.
func (s *SysfsServo) SetAngle(deg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deg > s.rangeDeg {
		deg = s.rangeDeg
	}
	if deg < -s.rangeDeg {
		deg = -s.rangeDeg
	}
	duty := pulseCenterNs + int(deg*pulsePerDegreeN)
	if err := writeSysfs(filepath.Join(s.dir, "duty_cycle"), strconv.Itoa(duty)); err != nil {
		return fmt.Errorf("pwm duty: %w", err)
	}
	s.angle = deg
	return nil
}

// Angle implements Servo.
func (s *SysfsServo) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// SysfsLaser switches a GPIO line driving the laser MOSFET.
type SysfsLaser struct {
	mu   sync.Mutex
	path string // .../gpioN/value
	on   bool
}

// NewSysfsLaser opens the laser GPIO and forces it off.
func NewSysfsLaser(path string) (*SysfsLaser, error) {
	l := &SysfsLaser{path: path}
	if err := l.SetOn(false); err != nil {
		return nil, err
	}
	return l, nil
}

// SetOn implements Laser.
func (l *SysfsLaser) SetOn(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := "0"
	if on {
		v = "1"
	}
	if err := writeSysfs(l.path, v); err != nil {
		return fmt.Errorf("laser gpio: %w", err)
	}
	l.on = on
	return nil
}

// IsOn implements Laser.
func (l *SysfsLaser) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// SysfsLED drives a bicolor LED on two GPIO lines.
type SysfsLED struct {
	mu        sync.Mutex
	greenPath string
	redPath   string
	stopBlink chan struct{}
	blinking  bool
}

// NewSysfsLED opens both LED lines.
func NewSysfsLED(greenPath, redPath string) *SysfsLED {
	return &SysfsLED{greenPath: greenPath, redPath: redPath}
}

// SetColor implements LED.
func (l *SysfsLED) SetColor(c LEDColor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.blinking {
		close(l.stopBlink)
		l.blinking = false
	}

	switch c {
	case LEDOff:
		return firstErr(writeSysfs(l.greenPath, "0"), writeSysfs(l.redPath, "0"))
	case LEDGreen:
		return firstErr(writeSysfs(l.greenPath, "1"), writeSysfs(l.redPath, "0"))
	case LEDRed:
		return firstErr(writeSysfs(l.greenPath, "0"), writeSysfs(l.redPath, "1"))
	case LEDGreenBlink:
		// Both lines low first so a previously lit red does not stay on
		// behind the blink.
		if err := firstErr(writeSysfs(l.greenPath, "0"), writeSysfs(l.redPath, "0")); err != nil {
			return err
		}
		l.stopBlink = make(chan struct{})
		l.blinking = true
		go l.blink(l.stopBlink)
		return nil
	}
	return fmt.Errorf("unknown led color %d", c)
}

func (l *SysfsLED) blink(stop chan struct{}) {
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	on := false
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			on = !on
			v := "0"
			if on {
				v = "1"
			}
			if err := writeSysfs(l.greenPath, v); err != nil {
				log.Warn("led blink write failed", "err", err)
				return
			}
		}
	}
}

// SysfsButton polls a GPIO line and emits one edge per debounced press.
type SysfsButton struct {
	path  string
	edges chan struct{}
}

// debounce matches the 50 ms hardware debounce window of the original
// button handler.
const buttonDebounce = 50 * time.Millisecond

// NewSysfsButton starts the polling goroutine. Poll interval is 10 ms,
// fast enough that a press is never missed and cheap enough to not
// matter.
func NewSysfsButton(path string) *SysfsButton {
	b := &SysfsButton{path: path, edges: make(chan struct{}, 8)}
	go b.poll()
	return b
}

// Edges implements Button.
func (b *SysfsButton) Edges() <-chan struct{} {
	return b.edges
}

func (b *SysfsButton) poll() {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	lastLevel := false
	var pressedAt time.Time
	reported := false

	for range t.C {
		raw, err := os.ReadFile(b.path)
		if err != nil {
			continue
		}
		level := strings.TrimSpace(string(raw)) == "1"

		switch {
		case level && !lastLevel:
			pressedAt = time.Now()
			reported = false
		case level && !reported && time.Since(pressedAt) >= buttonDebounce:
			reported = true
			select {
			case b.edges <- struct{}{}:
			default:
			}
		}
		lastLevel = level
	}
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
