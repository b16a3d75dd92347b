package sentry

import (
	"sync"
	"time"
)

// Writer identities for arm-state changes.
const (
	ByAPI      = "api"
	ByPhysical = "physical"
)

// ArmState is the single process-wide armed/disarmed flag. It is one of
// only two pieces of state shared across goroutines (the other is the
// actuator's safety window), so it carries its own lock. Pipeline
// stages read snapshots; only the control surface and the physical
// button write it.
type ArmState struct {
	mu          sync.Mutex
	armed       bool
	lastChanged time.Time
	changedBy   string
}

// NewArmState starts disarmed. The device must never boot hot.
func NewArmState() *ArmState {
	return &ArmState{lastChanged: time.Now()}
}

// Set updates the state. Setting the current value is a no-op and
// reports false.
func (a *ArmState) Set(armed bool, by string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed == armed {
		return false
	}
	a.armed = armed
	a.lastChanged = time.Now()
	a.changedBy = by
	return true
}

// Toggle flips the state, for the physical button.
func (a *ArmState) Toggle(by string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = !a.armed
	a.lastChanged = time.Now()
	a.changedBy = by
	return a.armed
}

// Armed returns the current flag.
func (a *ArmState) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

// Snapshot returns the full state.
func (a *ArmState) Snapshot() (armed bool, lastChanged time.Time, changedBy string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed, a.lastChanged, a.changedBy
}
