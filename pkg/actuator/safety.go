package actuator

import (
	"sync"
	"time"
)

// rollingWindow is the period the duty-cycle budget applies to.
const rollingWindow = time.Minute

// SafetyWindow tracks laser on-time and enforces the duty-cycle budget.
// It is the only state shared between the actuator goroutine and the
// callers that query remaining budget, so it carries its own lock.
//
// Two independent limits:
//   - no single activation may exceed the continuous ceiling;
//   - cumulative on-time inside any rolling 60 s window may not exceed
//     the window budget.
//
// The window check is non-predictive: a firing is allowed whenever the
// budget is not yet exhausted, and the continuous ceiling bounds how far
// a single activation can overshoot it. That matches the hardware
// interlock on the original device.
type SafetyWindow struct {
	mu           sync.Mutex
	maxOn        time.Duration
	windowBudget time.Duration

	spans   []onSpan
	onSince time.Time // zero when the laser is off
}

type onSpan struct {
	start, end time.Time
}

// NewSafetyWindow builds the tracker.
func NewSafetyWindow(maxOn, windowBudget time.Duration) *SafetyWindow {
	return &SafetyWindow{maxOn: maxOn, windowBudget: windowBudget}
}

// CanFire reports whether a new activation may start at t.
func (s *SafetyWindow) CanFire(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedLocked(t) < s.windowBudget
}

// Remaining returns the unused budget in the rolling window ending at t.
func (s *SafetyWindow) Remaining(t time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if used := s.usedLocked(t); used < s.windowBudget {
		return s.windowBudget - used
	}
	return 0
}

// MaxOn returns the continuous-on ceiling.
func (s *SafetyWindow) MaxOn() time.Duration {
	return s.maxOn
}

// NoteOn records the laser switching on at t.
func (s *SafetyWindow) NoteOn(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onSince.IsZero() {
		s.onSince = t
	}
}

// NoteOff records the laser switching off at t.
func (s *SafetyWindow) NoteOff(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onSince.IsZero() {
		return
	}
	s.spans = append(s.spans, onSpan{start: s.onSince, end: t})
	s.onSince = time.Time{}
	s.pruneLocked(t)
}

// ContinuousOn returns how long the current activation has been on, or
// zero when the laser is off.
func (s *SafetyWindow) ContinuousOn(t time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onSince.IsZero() {
		return 0
	}
	return t.Sub(s.onSince)
}

// usedLocked sums on-time overlapping the rolling window ending at t.
func (s *SafetyWindow) usedLocked(t time.Time) time.Duration {
	cutoff := t.Add(-rollingWindow)
	var used time.Duration
	for _, sp := range s.spans {
		start := sp.start
		if start.Before(cutoff) {
			start = cutoff
		}
		if sp.end.After(start) {
			used += sp.end.Sub(start)
		}
	}
	if !s.onSince.IsZero() {
		start := s.onSince
		if start.Before(cutoff) {
			start = cutoff
		}
		if t.After(start) {
			used += t.Sub(start)
		}
	}
	return used
}

// pruneLocked drops spans that can no longer intersect any future
// window. Spans are appended in order, so trimming the head suffices.
func (s *SafetyWindow) pruneLocked(t time.Time) {
	cutoff := t.Add(-rollingWindow)
	i := 0
	for i < len(s.spans) && s.spans[i].end.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.spans = append(s.spans[:0], s.spans[i:]...)
	}
}
