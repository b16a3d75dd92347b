// Package sentry ties the device together: it owns the capture loop,
// runs every pipeline stage in frame order, gates actuation on the arm
// state, supervises the camera, and serves the status the control
// surface exposes.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apisguard/edge/internal/config"
	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/actuator"
	"github.com/apisguard/edge/pkg/camera"
	"github.com/apisguard/edge/pkg/clips"
	"github.com/apisguard/edge/pkg/decision"
	"github.com/apisguard/edge/pkg/events"
	"github.com/apisguard/edge/pkg/hub"
	"github.com/apisguard/edge/pkg/hw"
	"github.com/apisguard/edge/pkg/tracking"
	"github.com/apisguard/edge/pkg/vision"
	"github.com/apisguard/edge/pkg/web"
)

// reconnect backoff bounds for the camera.
const (
	reopenBackoffMin = time.Second
	reopenBackoffMax = 8 * time.Second
)

// Options carries the sentry's collaborators. Source, Controller,
// Notifier, EventLog, Recorder and Metrics are required; the rest may
// be nil and the matching feature is disabled.
type Options struct {
	Config     config.Config
	Source     camera.Source
	Reopen     func() (camera.Source, error)
	Controller *actuator.Controller
	LED        hw.LED
	Button     hw.Button
	Notifier   *events.Notifier
	EventLog   *events.EventLog
	Recorder   *clips.Recorder
	FrameBus   *hub.FrameBus
	EventsHub  *hub.Hub
	Health     *HealthSampler
	Metrics    *Metrics
}

// Sentry is the pipeline orchestrator. One instance per device.
type Sentry struct {
	cfg        config.Config
	source     camera.Source
	reopen     func() (camera.Source, error)
	controller *actuator.Controller
	led        hw.LED
	button     hw.Button
	notifier   *events.Notifier
	eventLog   *events.EventLog
	recorder   *clips.Recorder
	frames     *hub.FrameBus
	eventsHub  *hub.Hub
	health     *HealthSampler
	metrics    *Metrics

	detector  *vision.Detector
	extractor *vision.Extractor
	tracker   *tracking.Tracker
	engine    *decision.Engine
	arm       *ArmState

	frameCh chan vision.Frame
	errCh   chan error

	startedAt   time.Time
	faultActive bool

	dayMu    sync.Mutex
	dayStart time.Time
	dayCount int

	logger interface {
		Debug(msg string, args ...any)
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Error(msg string, args ...any)
	}
}

// New builds the pipeline from the configuration.
func New(opts Options) *Sentry {
	cfg := opts.Config
	s := &Sentry{
		cfg:        cfg,
		source:     opts.Source,
		reopen:     opts.Reopen,
		controller: opts.Controller,
		led:        opts.LED,
		button:     opts.Button,
		notifier:   opts.Notifier,
		eventLog:   opts.EventLog,
		recorder:   opts.Recorder,
		frames:     opts.FrameBus,
		eventsHub:  opts.EventsHub,
		health:     opts.Health,
		metrics:    opts.Metrics,

		detector: vision.NewDetector(vision.MotionConfig{
			Width:        cfg.FrameWidth,
			Height:       cfg.FrameHeight,
			Threshold:    cfg.MotionThreshold,
			LearningRate: cfg.BGLearningRate,
		}),
		extractor: vision.NewExtractor(vision.ExtractorConfig{
			MinArea:              cfg.MinRegionArea,
			MaxArea:              cfg.MaxRegionArea,
			MinAspectRatio:       0.3,
			MaxAspectRatio:       3.0,
			GlobalChangeFraction: cfg.GlobalChangeFraction,
		}, cfg.FrameWidth, cfg.FrameHeight),
		tracker: tracking.New(tracking.Config{
			MaxDistance:   cfg.TrackMaxDistance,
			Timeout:       cfg.TrackTimeout,
			HoverRadius:   cfg.HoverRadius,
			HoverDuration: cfg.HoverDuration,
			BeeAreaMax:    cfg.BeeAreaMax,
			HornetAreaMin: cfg.HornetAreaMin,
		}),
		arm: NewArmState(),

		frameCh:   make(chan vision.Frame, 1),
		errCh:     make(chan error, 1),
		startedAt: time.Now(),
		dayStart:  startOfDay(time.Now()),
		logger:    log.Component("sentry"),
	}

	s.engine = decision.New(decision.Config{
		TriggerConfidence: cfg.TriggerConfidence,
		Cooldown:          cfg.Cooldown,
	}, opts.Controller)
	s.engine.OnStateChange = s.onEngineState
	if opts.Metrics != nil {
		s.engine.OnDeferred = opts.Metrics.DutyRefusals.Inc
		opts.Controller.Fired = opts.Metrics.LaserFirings.Inc
		if opts.Notifier != nil {
			opts.Notifier.Dropped = opts.Metrics.WebhooksDropped.Inc
		}
	}
	if s.eventLog != nil {
		s.dayCount = s.eventLog.CountSince(s.dayStart)
	}
	s.applyLED()
	return s
}

// Run is the pipeline loop: consumes frames in capture order, watches
// for camera faults, and never returns until the context ends.
func (s *Sentry) Run(ctx context.Context) error {
	go s.captureLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.errCh:
			s.onCameraFault(err)
		case f := <-s.frameCh:
			if s.faultActive {
				s.faultActive = false
				s.logger.Info("camera recovered")
			}
			s.processFrame(f)
		case <-time.After(s.cfg.CameraTimeout):
			s.onCameraFault(fmt.Errorf("no frame within %s", s.cfg.CameraTimeout))
		}
	}
}

// captureLoop is the camera's single reader. On failure it reports the
// error once and retries (re-initializing when a reopen hook is set)
// with exponential backoff.
func (s *Sentry) captureLoop(ctx context.Context) {
	backoff := reopenBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, camera.ErrSourceClosed) {
				return
			}
			select {
			case s.errCh <- err:
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < reopenBackoffMax {
				backoff *= 2
			}
			if s.reopen != nil {
				if src, rerr := s.reopen(); rerr == nil {
					s.source.Close()
					s.source = src
					backoff = reopenBackoffMin
				}
			}
			continue
		}
		backoff = reopenBackoffMin
		select {
		case s.frameCh <- f:
		case <-ctx.Done():
			return
		}
	}
}

// processFrame runs one frame through every stage in order.
func (s *Sentry) processFrame(f vision.Frame) {
	if s.metrics != nil {
		s.metrics.FramesProcessed.Inc()
	}
	if s.frames != nil && f.JPEG != nil {
		s.frames.Publish(f.JPEG)
	}
	if s.recorder != nil {
		s.recorder.Push(f)
	}

	mask, ok := s.detector.Process(f)
	if !ok {
		return
	}
	regions := s.extractor.Extract(mask)
	tracks := s.tracker.Update(f.Timestamp, regions)
	if s.metrics != nil {
		s.metrics.MotionRegions.Add(float64(len(regions)))
		s.metrics.ActiveTracks.Set(float64(s.tracker.ActiveCount()))
	}

	det := s.engine.Step(f.Timestamp, s.arm.Armed(), tracks)
	if det != nil {
		s.handleDetection(det)
	}
}

// handleDetection records, logs and broadcasts one commanded
// deterrence.
func (s *Sentry) handleDetection(det *decision.Detection) {
	var clipID string
	if s.recorder != nil {
		clipID = s.recorder.Begin(det.Time, det.TrackID, det.Confidence)
	}

	ev := events.NewDetectionEvent(det.Time, det.TrackID, det.Confidence, det.AngleDeg, true)
	ev.ClipID = clipID

	if s.eventLog != nil {
		s.eventLog.Append(ev)
	}
	s.bumpDetections(det.Time)
	if s.metrics != nil {
		s.metrics.Detections.Inc()
	}

	var clipURL *string
	if clipID != "" {
		u := "/clips/" + clipID
		clipURL = &u
	}
	s.notifier.Publish(events.KindDetection, events.PriorityInfo,
		fmt.Sprintf("hornet deterred: track %d, confidence %.2f", det.TrackID, det.Confidence),
		clipURL)
	if s.eventsHub != nil {
		s.eventsHub.BroadcastJSON(ev)
	}

	s.logger.Info("detection", "event_id", ev.ID, "track_id", det.TrackID,
		"confidence", det.Confidence, "angle_deg", det.AngleDeg, "clip_id", clipID)
}

// onCameraFault latches the fault and emits the critical webhook once
// per onset. Repeated errors while the fault is active stay quiet.
func (s *Sentry) onCameraFault(err error) {
	if s.faultActive {
		return
	}
	s.faultActive = true
	s.logger.Error("camera fault", "err", err)
	if s.metrics != nil {
		s.metrics.CameraFaults.Inc()
	}
	s.notifier.Publish(events.KindCameraError, events.PriorityCritical,
		"camera stopped delivering frames", nil)

	// Stale pipeline state would mis-track whatever shows up after the
	// camera returns.
	s.detector.Reset()
	s.tracker.Reset()
}

// WatchButton toggles the arm state on physical button presses. The
// button stays live whatever else fails.
func (s *Sentry) WatchButton(ctx context.Context) {
	if s.button == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.button.Edges():
			armed := s.arm.Toggle(ByPhysical)
			s.logger.Info("button toggled arm state", "armed", armed)
			s.afterArmChange(armed)
		}
	}
}

// SetArmed implements web.Controller; the API is the other arm writer.
func (s *Sentry) SetArmed(armed bool) {
	if !s.arm.Set(armed, ByAPI) {
		return
	}
	s.logger.Info("arm state changed", "armed", armed, "by", ByAPI)
	s.afterArmChange(armed)
}

// afterArmChange aborts in-flight actuation on disarm and updates the
// LED and subscribers. Disarm must not wait for the next pipeline
// cycle to kill the laser.
func (s *Sentry) afterArmChange(armed bool) {
	if !armed {
		s.controller.Abort()
	}
	s.applyLED()
	if s.eventsHub != nil {
		s.eventsHub.BroadcastJSON(map[string]any{
			"type":  "arm_state",
			"armed": armed,
		})
	}
}

// Status implements web.Controller.
func (s *Sentry) Status() web.Status {
	return web.Status{
		Armed:           s.arm.Armed(),
		UptimeSec:       int(time.Since(s.startedAt).Seconds()),
		DetectionsToday: s.detectionsToday(time.Now()),
	}
}

// Health implements web.Controller.
func (s *Sentry) Health() web.Health {
	snap := s.health.Snapshot()
	status := "ok"
	if snap.Degraded {
		status = "degraded"
	}
	return web.Health{
		Status:     status,
		Temp:       snap.TempC,
		StoragePct: snap.StoragePct,
	}
}

// onEngineState drives the LED blink while deterring.
func (s *Sentry) onEngineState(from, to decision.State) {
	if s.led == nil {
		return
	}
	if to == decision.StateDeterring {
		if err := s.led.SetColor(hw.LEDGreenBlink); err != nil {
			s.logger.Warn("led update failed", "err", err)
		}
	} else if from == decision.StateDeterring {
		s.applyLED()
	}
}

// applyLED shows the arm state: green armed, red disarmed.
func (s *Sentry) applyLED() {
	if s.led == nil {
		return
	}
	color := hw.LEDRed
	if s.arm.Armed() {
		color = hw.LEDGreen
	}
	if err := s.led.SetColor(color); err != nil {
		s.logger.Warn("led update failed", "err", err)
	}
}

func (s *Sentry) bumpDetections(at time.Time) {
	s.dayMu.Lock()
	defer s.dayMu.Unlock()
	s.rollDay(at)
	s.dayCount++
}

func (s *Sentry) detectionsToday(now time.Time) int {
	s.dayMu.Lock()
	defer s.dayMu.Unlock()
	s.rollDay(now)
	return s.dayCount
}

// rollDay resets the counter at midnight, recounting from the event
// log so a restart and a date change agree. Caller holds dayMu.
func (s *Sentry) rollDay(now time.Time) {
	if now.Before(s.dayStart.Add(24 * time.Hour)) {
		return
	}
	s.dayStart = startOfDay(now)
	s.dayCount = 0
	if s.eventLog != nil {
		s.dayCount = s.eventLog.CountSince(s.dayStart)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
