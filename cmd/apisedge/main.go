package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/apisguard/edge/internal/config"
	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/actuator"
	"github.com/apisguard/edge/pkg/camera"
	"github.com/apisguard/edge/pkg/clips"
	"github.com/apisguard/edge/pkg/events"
	"github.com/apisguard/edge/pkg/hub"
	"github.com/apisguard/edge/pkg/hw"
	"github.com/apisguard/edge/pkg/sentry"
	"github.com/apisguard/edge/pkg/web"
)

const thermalZone = "/sys/class/thermal/thermal_zone0/temp"

func main() {
	mock := flag.Bool("mock", false, "Mock hardware and camera (development mode)")
	device := flag.String("device", "/dev/video0", "Camera device")
	pwmDir := flag.String("pwm", "/sys/class/pwm/pwmchip0/pwm0", "Servo PWM sysfs directory")
	laserGPIO := flag.String("laser-gpio", "/sys/class/gpio/gpio17/value", "Laser GPIO value file")
	ledGreen := flag.String("led-green", "/sys/class/gpio/gpio22/value", "Green LED GPIO value file")
	ledRed := flag.String("led-red", "/sys/class/gpio/gpio23/value", "Red LED GPIO value file")
	buttonGPIO := flag.String("button-gpio", "/sys/class/gpio/gpio27/value", "Arm button GPIO value file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.Component("main")
	logger.Info("apisedge starting", "listen", cfg.ListenAddr, "mock", *mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Hardware.
	var (
		servo  hw.Servo
		laser  hw.Laser
		led    hw.LED
		button hw.Button
	)
	if *mock {
		m := hw.NewMock()
		servo, laser, led, button = m, m, m, m
	} else {
		servo, err = hw.NewSysfsServo(*pwmDir, cfg.ServoRangeDeg)
		if err != nil {
			logger.Error("servo init failed", "err", err)
			os.Exit(1)
		}
		laser, err = hw.NewSysfsLaser(*laserGPIO)
		if err != nil {
			logger.Error("laser init failed", "err", err)
			os.Exit(1)
		}
		led = hw.NewSysfsLED(*ledGreen, *ledRed)
		button = hw.NewSysfsButton(*buttonGPIO)
	}

	// Camera.
	camCfg := camera.Config{
		Device:      *device,
		Width:       cfg.FrameWidth,
		Height:      cfg.FrameHeight,
		FPS:         cfg.FPS,
		JPEGQuality: 80,
	}
	var source camera.Source
	var reopen func() (camera.Source, error)
	if *mock {
		source = camera.NewSynthetic(cfg.FrameWidth, cfg.FrameHeight, cfg.FPS)
	} else {
		source, err = camera.Open(camCfg)
		if err != nil {
			logger.Error("camera init failed", "err", err)
			os.Exit(1)
		}
		reopen = func() (camera.Source, error) { return camera.Open(camCfg) }
	}

	// Actuation.
	controller := actuator.New(servo, laser, actuator.Config{
		SweepAmplitudeDeg: cfg.SweepAmplitudeDeg,
		SweepCycles:       cfg.SweepCycles,
		SweepFrequencyHz:  cfg.SweepFrequencyHz,
		ServoRangeDeg:     cfg.ServoRangeDeg,
		ServoSettle:       cfg.ServoSettle,
		MaxOn:             cfg.LaserMaxOn,
		WindowBudget:      cfg.LaserWindowBudget,
		FrameWidth:        cfg.FrameWidth,
		CameraFOVDeg:      cfg.CameraFOVDeg,
	})

	// Storage, events, telemetry.
	notifier := events.NewNotifier(cfg.WebhookURL)
	eventLog, err := events.NewEventLog(cfg.ClipDir)
	if err != nil {
		logger.Error("event log init failed", "err", err)
		os.Exit(1)
	}
	store, err := clips.NewStore(cfg.ClipDir, float64(cfg.StorageQuotaPct), nil)
	if err != nil {
		logger.Error("clip store init failed", "err", err)
		os.Exit(1)
	}
	recorder := clips.NewRecorder(store, cfg.ClipPreroll, cfg.ClipPostroll)
	recorder.StorageFull = func() {
		notifier.Publish(events.KindStorageWarning, events.PriorityWarning,
			"clip skipped: storage quota could not be met", nil)
	}

	registry := prometheus.NewRegistry()
	metrics := sentry.NewMetrics(registry)
	health := sentry.NewHealthSampler(thermalZone, cfg.ClipDir, nil, 30*time.Second, notifier)
	frameBus := hub.NewFrameBus()
	eventsHub := hub.New("events")

	s := sentry.New(sentry.Options{
		Config:     cfg,
		Source:     source,
		Reopen:     reopen,
		Controller: controller,
		LED:        led,
		Button:     button,
		Notifier:   notifier,
		EventLog:   eventLog,
		Recorder:   recorder,
		FrameBus:   frameBus,
		EventsHub:  eventsHub,
		Health:     health,
		Metrics:    metrics,
	})

	server := web.New(s, store, frameBus, eventsHub, registry)

	notifier.Publish(events.KindBoot, events.PriorityInfo, "device booted", nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { controller.Run(gctx); return nil })
	g.Go(func() error { notifier.Run(gctx); return nil })
	g.Go(func() error { recorder.Run(gctx); return nil })
	g.Go(func() error { health.Run(gctx); return nil })
	g.Go(func() error { s.WatchButton(gctx); return nil })
	g.Go(func() error { return server.Listen(cfg.ListenAddr) })
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown()
	})

	err = g.Wait()

	// Best effort: give the shutdown webhook a moment to leave the box.
	notifier.Publish(events.KindShutdown, events.PriorityInfo, "device shutting down", nil)
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	go notifier.Run(flushCtx)
	<-flushCtx.Done()
	flushCancel()

	controller.Abort()
	source.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}
