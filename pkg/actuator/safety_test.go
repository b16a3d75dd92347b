package actuator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSafetyWindow_FreshWindowCanFire(t *testing.T) {
	s := NewSafetyWindow(10*time.Second, 45*time.Second)
	now := time.Now()

	assert.True(t, s.CanFire(now))
	assert.Equal(t, 45*time.Second, s.Remaining(now))
}

func TestSafetyWindow_BudgetExhaustion(t *testing.T) {
	s := NewSafetyWindow(10*time.Second, 45*time.Second)
	base := time.Now()

	// Eight 6 s firings spread over 50 s. Each starts while used time is
	// still under budget, so all eight run, accumulating 48 s. The ninth
	// request finds the budget spent.
	for i := 0; i < 8; i++ {
		start := base.Add(time.Duration(i) * 6200 * time.Millisecond)
		assert.True(t, s.CanFire(start), "firing %d should be allowed", i+1)
		s.NoteOn(start)
		s.NoteOff(start.Add(6 * time.Second))
	}

	after := base.Add(51 * time.Second)
	assert.False(t, s.CanFire(after))
	assert.Equal(t, time.Duration(0), s.Remaining(after))
}

func TestSafetyWindow_BudgetRecoversAsWindowSlides(t *testing.T) {
	s := NewSafetyWindow(10*time.Second, 45*time.Second)
	base := time.Now()

	// Burn the whole budget in one stretch of back-to-back activations.
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * 10 * time.Second)
		s.NoteOn(start)
		s.NoteOff(start.Add(9 * time.Second))
	}
	assert.False(t, s.CanFire(base.Add(50*time.Second)))

	// Once the earliest spans slide out of the rolling minute, budget
	// frees up again.
	later := base.Add(100 * time.Second)
	assert.True(t, s.CanFire(later))
	assert.Greater(t, s.Remaining(later), 20*time.Second)
}

func TestSafetyWindow_CurrentActivationCounts(t *testing.T) {
	s := NewSafetyWindow(10*time.Second, 45*time.Second)
	base := time.Now()

	s.NoteOn(base)
	mid := base.Add(44 * time.Second)
	assert.Equal(t, time.Second, s.Remaining(mid))
	assert.Equal(t, 44*time.Second, s.ContinuousOn(mid))

	past := base.Add(46 * time.Second)
	assert.False(t, s.CanFire(past))
	s.NoteOff(past)
	assert.Equal(t, time.Duration(0), s.ContinuousOn(past))
}

func TestSafetyWindow_PartialOverlapAtWindowEdge(t *testing.T) {
	s := NewSafetyWindow(10*time.Second, 45*time.Second)
	base := time.Now()

	// A 10 s span that has half slid out of the window only counts for
	// the 5 s still inside it.
	s.NoteOn(base)
	s.NoteOff(base.Add(10 * time.Second))

	at := base.Add(65 * time.Second)
	assert.Equal(t, 40*time.Second, s.Remaining(at))
}

func TestSafetyWindow_NoteOffWithoutOnIsNoop(t *testing.T) {
	s := NewSafetyWindow(10*time.Second, 45*time.Second)
	now := time.Now()

	s.NoteOff(now)
	assert.Equal(t, 45*time.Second, s.Remaining(now))
}
