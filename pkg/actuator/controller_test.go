package actuator

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apisguard/edge/pkg/hw"
)

// fastConfig keeps sweep durations in the tens of milliseconds so the
// full aim-settle-sweep sequence completes quickly.
func fastConfig() Config {
	return Config{
		SweepAmplitudeDeg: 10,
		SweepCycles:       2,
		SweepFrequencyHz:  20, // 2 cycles at 20 Hz = 100 ms sweep
		ServoRangeDeg:     15,
		ServoSettle:       10 * time.Millisecond,
		MaxOn:             10 * time.Second,
		WindowBudget:      45 * time.Second,
		FrameWidth:        640,
		CameraFOVDeg:      60,
	}
}

func startController(t *testing.T, mock *hw.Mock, cfg Config) *Controller {
	t.Helper()
	c := New(mock, mock, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c
}

func TestDeter_CompletesSweepAndRecenters(t *testing.T) {
	mock := hw.NewMock()
	c := startController(t, mock, fastConfig())

	cmd, err := c.Deter(image.Pt(360, 200))
	require.NoError(t, err)
	assert.InDelta(t, 3.75, cmd.AngleDeg, 0.01)

	select {
	case out := <-cmd.Done:
		assert.True(t, out.Completed)
		assert.Greater(t, out.OnTime, 50*time.Millisecond)
		assert.Less(t, out.OnTime, 500*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("deterrence did not finish")
	}

	assert.False(t, mock.LaserOn())
	assert.Equal(t, 0.0, mock.Angle())
	// On exactly once, off exactly once.
	assert.Equal(t, []bool{true, false}, mock.LaserCalls)
}

func TestDeter_FiredHookAndDutyAccounting(t *testing.T) {
	mock := hw.NewMock()
	c := startController(t, mock, fastConfig())

	fired := 0
	c.Fired = func() { fired++ }

	cmd, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)
	<-cmd.Done

	assert.Equal(t, 1, fired)
	used := c.Safety().windowBudget - c.Safety().Remaining(time.Now())
	assert.Greater(t, used, 50*time.Millisecond)
}

func TestDeter_RefusedWhenBudgetExhausted(t *testing.T) {
	mock := hw.NewMock()
	c := startController(t, mock, fastConfig())

	// Pre-load the safety window with a span that consumes the budget.
	now := time.Now()
	c.safety.NoteOn(now.Add(-50 * time.Second))
	c.safety.NoteOff(now.Add(-5 * time.Second))

	_, err := c.Deter(image.Pt(320, 100))
	assert.ErrorIs(t, err, ErrDutyCycleExhausted)
	assert.Empty(t, mock.LaserCalls)
}

func TestDeter_BusyWhileInFlight(t *testing.T) {
	mock := hw.NewMock()
	c := startController(t, mock, fastConfig())

	cmd, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)

	_, err = c.Deter(image.Pt(100, 100))
	assert.ErrorIs(t, err, ErrBusy)

	<-cmd.Done

	// Accepts again once the sequence finished.
	cmd2, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)
	<-cmd2.Done
}

func TestAbort_StopsSweepWithinTick(t *testing.T) {
	cfg := fastConfig()
	cfg.SweepCycles = 100
	cfg.SweepFrequencyHz = 20 // 5 s sweep if left alone
	mock := hw.NewMock()
	c := startController(t, mock, cfg)

	cmd, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)

	// Let the laser come on, then abort mid-sweep.
	require.Eventually(t, mock.LaserOn, time.Second, time.Millisecond)
	abortAt := time.Now()
	c.Abort()

	assert.False(t, mock.LaserOn())
	assert.Equal(t, 0.0, mock.Angle())

	select {
	case out := <-cmd.Done:
		assert.False(t, out.Completed)
		assert.Less(t, time.Since(abortAt), 200*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("aborted sequence did not report an outcome")
	}
}

func TestAbort_InvalidatesQueuedRequest(t *testing.T) {
	mock := hw.NewMock()
	c := New(mock, mock, fastConfig())

	// Queue a deterrence while the run loop is not yet scheduled, then
	// abort before it starts, as a disarm racing the pipeline does.
	cmd, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)
	c.Abort()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	select {
	case out := <-cmd.Done:
		assert.False(t, out.Completed)
		assert.Zero(t, out.OnTime)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidated request did not report an outcome")
	}

	// The laser never came on; the only call is the abort's forced off.
	assert.NotContains(t, mock.LaserCalls, true)

	// A fresh request after the abort executes normally.
	cmd2, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)
	out := <-cmd2.Done
	assert.True(t, out.Completed)
	assert.False(t, mock.LaserOn())
}

func TestDeter_MaxOnCapsSweep(t *testing.T) {
	cfg := fastConfig()
	cfg.SweepCycles = 100
	cfg.SweepFrequencyHz = 20 // asks for 5 s
	cfg.MaxOn = 60 * time.Millisecond
	mock := hw.NewMock()
	c := startController(t, mock, cfg)

	cmd, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)

	select {
	case out := <-cmd.Done:
		assert.True(t, out.Completed)
		assert.Less(t, out.OnTime, 300*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("ceiling did not cut the sweep")
	}
	assert.False(t, mock.LaserOn())
}

func TestDeter_ServoFaultKeepsLaserOff(t *testing.T) {
	mock := hw.NewMock()
	mock.Fail = assert.AnError
	c := startController(t, mock, fastConfig())

	cmd, err := c.Deter(image.Pt(320, 100))
	require.NoError(t, err)

	select {
	case out := <-cmd.Done:
		assert.False(t, out.Completed)
		assert.Zero(t, out.OnTime)
	case <-time.After(2 * time.Second):
		t.Fatal("faulted sequence did not report an outcome")
	}
	assert.False(t, mock.LaserOn())
}
