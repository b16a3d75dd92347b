// Package actuator owns the servo and the laser. No other component
// may address the physical deterrent: the decision engine hands over a
// target centroid and observes the outcome, and every hard safety
// limit (continuous-on ceiling, rolling duty-cycle budget, abort
// latency) is enforced here, at the single point of physical control,
// independent of any upstream logic.
package actuator

import (
	"errors"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/hw"
)

// tick is the scheduling quantum of the sweep loop. Abort is guaranteed
// to take effect within one tick.
const tick = 10 * time.Millisecond

// Defined outcomes a caller must handle.
var (
	// ErrDutyCycleExhausted reports that the rolling on-time budget is
	// spent. Not a fault: the candidate is simply not deterred this
	// cycle and the caller retries once the window frees budget.
	ErrDutyCycleExhausted = errors.New("laser duty-cycle budget exhausted")

	// ErrBusy reports that a deterrence sequence is already in flight.
	ErrBusy = errors.New("deterrence already in flight")
)

// Config holds the actuation tunables.
type Config struct {
	SweepAmplitudeDeg float64       // +/- degrees around the aim point
	SweepCycles       int           // oscillations per deterrence
	SweepFrequencyHz  float64       // oscillation rate
	ServoRangeDeg     float64       // mechanical range from center
	ServoSettle       time.Duration // wait after aiming before firing
	MaxOn             time.Duration // continuous-on ceiling
	WindowBudget      time.Duration // on-time budget per rolling minute
	FrameWidth        int
	CameraFOVDeg      float64
}

// Outcome reports how a deterrence sequence ended.
type Outcome struct {
	Completed bool          // full sweep ran; false when aborted
	OnTime    time.Duration // how long the laser was actually on
}

// Command is the handle returned for an accepted deterrence.
type Command struct {
	AngleDeg float64
	Done     <-chan Outcome
}

type request struct {
	angle float64
	gen   uint64
	done  chan Outcome
}

// Controller serializes all hardware commands. One Run loop executes
// deterrence sequences; Abort is the only operation allowed to touch
// the hardware from another goroutine, and it wins any race because
// both paths take hwMu and the sweep re-checks the abort generation on
// every tick before commanding the laser. The generation only ever
// increments, so an abort also invalidates a request that was queued
// but not yet started: Run refuses it instead of executing it.
type Controller struct {
	cfg    Config
	servo  hw.Servo
	laser  hw.Laser
	mapper Mapper
	safety *SafetyWindow

	hwMu     sync.Mutex
	abortGen atomic.Uint64
	inFlight atomic.Bool
	requests chan request

	// Fired is called once per laser activation (metrics hook, may be
	// nil).
	Fired func()

	logger interface {
		Debug(msg string, args ...any)
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
	}
}

// New builds a controller around the given hardware.
func New(servo hw.Servo, laser hw.Laser, cfg Config) *Controller {
	return &Controller{
		cfg:      cfg,
		servo:    servo,
		laser:    laser,
		mapper:   NewMapper(cfg.FrameWidth, cfg.CameraFOVDeg, cfg.ServoRangeDeg),
		safety:   NewSafetyWindow(cfg.MaxOn, cfg.WindowBudget),
		requests: make(chan request, 1),
		logger:   log.Component("actuator"),
	}
}

// Safety exposes the duty-cycle window for health reporting.
func (c *Controller) Safety() *SafetyWindow {
	return c.safety
}

// Deter aims at the centroid and runs the sweep asynchronously. It
// returns the commanded angle and a channel that yields the single
// Outcome. ErrDutyCycleExhausted and ErrBusy are defined refusals, not
// faults.
func (c *Controller) Deter(centroid image.Point) (Command, error) {
	if !c.safety.CanFire(time.Now()) {
		c.logger.Info("deterrence refused, duty-cycle budget exhausted",
			"remaining", c.safety.Remaining(time.Now()))
		return Command{}, ErrDutyCycleExhausted
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return Command{}, ErrBusy
	}

	angle := c.mapper.Angle(centroid.X)
	req := request{angle: angle, gen: c.abortGen.Load(), done: make(chan Outcome, 1)}
	c.requests <- req // cap 1 and inFlight gate: never blocks

	return Command{AngleDeg: angle, Done: req.done}, nil
}

// Abort immediately forces the laser off and the servo to center, and
// invalidates any deterrence that is in flight or still queued. Safe to
// call at any time, from any goroutine, including mid-sweep.
func (c *Controller) Abort() {
	c.abortGen.Add(1)

	c.hwMu.Lock()
	defer c.hwMu.Unlock()
	if err := c.laser.SetOn(false); err != nil {
		c.logger.Warn("abort: laser off failed", "err", err)
	}
	c.safety.NoteOff(time.Now())
	if err := c.servo.SetAngle(0); err != nil {
		c.logger.Warn("abort: servo center failed", "err", err)
	}
}

// Run executes deterrence sequences until the context is canceled.
func (c *Controller) Run(ctx interface{ Done() <-chan struct{} }) {
	for {
		select {
		case <-ctx.Done():
			c.Abort()
			return
		case req := <-c.requests:
			var out Outcome
			if req.gen == c.abortGen.Load() {
				out = c.execute(req)
			} else {
				c.logger.Info("deterrence dropped, aborted before start")
			}
			req.done <- out
			c.inFlight.Store(false)
		}
	}
}

// execute runs one aim-settle-sweep sequence. A request is aborted the
// moment the abort generation moves past the one it was accepted under.
func (c *Controller) execute(req request) Outcome {
	angle := req.angle
	aborted := func() bool { return c.abortGen.Load() != req.gen }

	c.hwMu.Lock()
	err := c.servo.SetAngle(angle)
	c.hwMu.Unlock()
	if err != nil {
		c.logger.Warn("aim failed", "angle", angle, "err", err)
		return Outcome{}
	}

	if !c.sleepAbortable(c.cfg.ServoSettle, req.gen) {
		return Outcome{}
	}

	sweep := c.sweepDuration()
	start := time.Now()

	c.hwMu.Lock()
	if aborted() {
		c.hwMu.Unlock()
		return Outcome{}
	}
	if err := c.laser.SetOn(true); err != nil {
		c.hwMu.Unlock()
		c.logger.Warn("laser on failed", "err", err)
		return Outcome{}
	}
	c.safety.NoteOn(start)
	c.hwMu.Unlock()

	if c.Fired != nil {
		c.Fired()
	}
	c.logger.Info("deterring", "angle_deg", angle, "sweep", sweep)

	ticker := time.NewTicker(tick)
	completed := true
	omega := 2 * math.Pi * c.cfg.SweepFrequencyHz

	for range ticker.C {
		elapsed := time.Since(start)
		if aborted() {
			completed = false
			break
		}
		// Continuous-on ceiling is enforced here regardless of what
		// sweep duration the configuration asked for.
		if elapsed >= sweep || elapsed >= c.cfg.MaxOn {
			break
		}

		offset := c.cfg.SweepAmplitudeDeg * math.Sin(omega*elapsed.Seconds())
		c.hwMu.Lock()
		if !aborted() {
			if err := c.servo.SetAngle(c.mapper.Clamp(angle + offset)); err != nil {
				c.logger.Warn("sweep step failed", "err", err)
			}
		}
		c.hwMu.Unlock()
	}
	ticker.Stop()

	end := time.Now()
	c.hwMu.Lock()
	if err := c.laser.SetOn(false); err != nil {
		c.logger.Warn("laser off failed", "err", err)
	}
	c.safety.NoteOff(end)
	if err := c.servo.SetAngle(0); err != nil {
		c.logger.Warn("servo center failed", "err", err)
	}
	c.hwMu.Unlock()

	onTime := end.Sub(start)
	c.logger.Debug("deterrence finished", "completed", completed,
		"on_time", onTime.Round(time.Millisecond))
	return Outcome{Completed: completed, OnTime: onTime}
}

// sweepDuration derives the sweep length from cycles and frequency.
func (c *Controller) sweepDuration() time.Duration {
	if c.cfg.SweepFrequencyHz <= 0 || c.cfg.SweepCycles <= 0 {
		return time.Second
	}
	return time.Duration(float64(c.cfg.SweepCycles) / c.cfg.SweepFrequencyHz * float64(time.Second))
}

// sleepAbortable waits d, returning false if the abort generation moved
// past gen meanwhile.
func (c *Controller) sleepAbortable(d time.Duration, gen uint64) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if c.abortGen.Load() != gen {
			return false
		}
		time.Sleep(tick)
	}
	return c.abortGen.Load() == gen
}
