// Package decision turns scored tracks into deterrence commands through
// a small state machine. It never touches hardware: the actuation
// controller is behind an interface, and the engine only observes its
// accept/refuse/complete signals.
package decision

import (
	"errors"
	"image"
	"time"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/actuator"
	"github.com/apisguard/edge/pkg/tracking"
)

// State of the engine.
type State int

// Engine states. Confirmed is transient: within one step a confirmed
// candidate either starts a deterrence or is deferred back to Tracking.
const (
	StateIdle State = iota
	StateTracking
	StateConfirmed
	StateDeterring
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateConfirmed:
		return "confirmed"
	case StateDeterring:
		return "deterring"
	case StateCooldown:
		return "cooldown"
	}
	return "unknown"
}

// Actuator is the slice of the actuation controller the engine needs.
type Actuator interface {
	Deter(centroid image.Point) (actuator.Command, error)
	Abort()
}

// Config holds the activation tunables.
type Config struct {
	TriggerConfidence float64
	Cooldown          time.Duration
}

// Detection reports one commanded deterrence, emitted by Step exactly
// once per Deterring entry.
type Detection struct {
	Time       time.Time
	TrackID    uint32
	Confidence float64
	AngleDeg   float64
}

// Engine is the confirm/activate/cooldown state machine. It belongs to
// the pipeline goroutine; Step is called once per processed frame.
type Engine struct {
	cfg Config
	act Actuator

	state         State
	pending       actuator.Command
	cooldownUntil time.Time

	// OnStateChange observes every transition (may be nil). Called
	// synchronously from Step.
	OnStateChange func(from, to State)

	// OnDeferred is called when a confirmed candidate is refused for
	// duty-cycle budget (may be nil).
	OnDeferred func()

	logger interface {
		Debug(msg string, args ...any)
		Info(msg string, args ...any)
	}
}

// New creates an engine in Idle.
func New(cfg Config, act Actuator) *Engine {
	return &Engine{
		cfg:    cfg,
		act:    act,
		state:  StateIdle,
		logger: log.Component("decision"),
	}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Step advances the machine one cycle. armed gates all actuation: when
// false the engine aborts any in-flight deterrence and holds Idle,
// whatever the tracks say. tracks must be ordered by descending
// confidence, as the tracker returns them; with single-target hardware
// only the best candidate is served, the rest wait for a later cycle.
//
// The returned Detection is non-nil exactly when a deterrence was
// commanded this step.
func (e *Engine) Step(now time.Time, armed bool, tracks []tracking.Track) *Detection {
	if !armed {
		if e.state == StateDeterring {
			e.act.Abort()
			e.drainPending()
		}
		e.transition(StateIdle)
		return nil
	}

	switch e.state {
	case StateDeterring:
		select {
		case out := <-e.pending.Done:
			e.logger.Debug("deterrence done",
				"completed", out.Completed, "on_time", out.OnTime.Round(time.Millisecond))
			e.cooldownUntil = now.Add(e.cfg.Cooldown)
			e.transition(StateCooldown)
		default:
		}
		return nil

	case StateCooldown:
		if now.Before(e.cooldownUntil) {
			return nil
		}
		// Budget window reopened; reassess from scratch this step.
	}

	best, ok := bestCandidate(tracks)
	if !ok {
		e.transition(StateIdle)
		return nil
	}
	e.transition(StateTracking)

	if best.Confidence() < e.cfg.TriggerConfidence {
		return nil
	}
	if now.Before(e.cooldownUntil) {
		// A disarm forces Idle without clearing the residual cooldown;
		// after a rearm no new episode may begin inside it.
		return nil
	}
	e.transition(StateConfirmed)

	cmd, err := e.act.Deter(best.Centroid)
	switch {
	case errors.Is(err, actuator.ErrDutyCycleExhausted):
		// Defined outcome, not a fault: the candidate is deferred and
		// stays a candidate for later cycles.
		if e.OnDeferred != nil {
			e.OnDeferred()
		}
		e.transition(StateTracking)
		return nil
	case err != nil:
		e.logger.Info("deterrence not started", "err", err)
		e.transition(StateTracking)
		return nil
	}

	e.pending = cmd
	e.transition(StateDeterring)
	e.logger.Info("deterrence commanded",
		"track_id", best.ID, "confidence", best.Confidence(), "angle_deg", cmd.AngleDeg)

	return &Detection{
		Time:       now,
		TrackID:    best.ID,
		Confidence: best.Confidence(),
		AngleDeg:   cmd.AngleDeg,
	}
}

// bestCandidate returns the highest-confidence track with a nonzero
// size score. Bee-sized movers never make the machine leave Idle.
func bestCandidate(tracks []tracking.Track) (tracking.Track, bool) {
	for _, t := range tracks {
		if t.SizeScore > 0 {
			return t, true
		}
	}
	return tracking.Track{}, false
}

func (e *Engine) transition(to State) {
	if e.state == to {
		return
	}
	from := e.state
	e.state = to
	e.logger.Debug("state change", "from", from.String(), "to", to.String())
	if e.OnStateChange != nil {
		e.OnStateChange(from, to)
	}
}

// drainPending consumes an outcome the abort may have produced so the
// next deterrence starts with a clean handle.
func (e *Engine) drainPending() {
	if e.pending.Done == nil {
		return
	}
	select {
	case <-e.pending.Done:
	default:
	}
	e.pending = actuator.Command{}
}
