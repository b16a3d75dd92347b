// Package config loads the daemon configuration from the environment.
//
// Every tunable has a default chosen for a VGA camera at roughly one
// meter from the hive entrance. The configuration is read once at boot
// and treated as immutable for the process lifetime; changing a value
// requires a restart. That is deliberate: the detection pipeline, the
// actuator and the safety window all snapshot their thresholds at
// construction and never re-read them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable threshold for the device.
type Config struct {
	// Frame geometry and rate
	FrameWidth  int
	FrameHeight int
	FPS         int

	// Motion detection
	MotionThreshold      uint8   // abs grayscale diff that counts as motion
	BGLearningRate       float64 // EMA alpha for the background model
	MinRegionArea        int     // px, floor below which regions are noise
	MaxRegionArea        int     // px, sanity ceiling (illumination floods)
	GlobalChangeFraction float64 // mask fraction treated as global change

	// Size classification
	BeeAreaMax    int // px, at or below this size_score is 0
	HornetAreaMin int // px, at or above this size_score is 1

	// Tracking and hover
	TrackMaxDistance float64       // px association gate
	TrackTimeout     time.Duration // expire a track with no match
	HoverRadius      float64       // px, stability radius
	HoverDuration    time.Duration // continuous time inside radius for score 1

	// Decision
	TriggerConfidence float64 // size_score * hover_score needed to confirm
	Cooldown          time.Duration

	// Actuation and safety
	LaserMaxOn        time.Duration // hard ceiling per activation
	LaserWindowBudget time.Duration // cumulative on-time per rolling minute
	SweepAmplitudeDeg float64
	SweepCycles       int
	SweepFrequencyHz  float64
	ServoRangeDeg     float64 // mechanical sweep is +/- this around center
	ServoSettle       time.Duration
	CameraFOVDeg      float64 // horizontal field of view

	// Camera supervision
	CameraTimeout time.Duration // no frame for this long means camera fault

	// Clips and storage
	ClipPreroll     time.Duration
	ClipPostroll    time.Duration
	StorageQuotaPct int
	ClipDir         string

	// Control surface
	ListenAddr string
	WebhookURL string
	LogLevel   string
}

// Default returns the recommended configuration for a VGA camera at ~1m.
func Default() Config {
	return Config{
		FrameWidth:  640,
		FrameHeight: 480,
		FPS:         10,

		MotionThreshold:      25, // ~10% brightness change
		BGLearningRate:       0.001,
		MinRegionArea:        40,
		MaxRegionArea:        50000,
		GlobalChangeFraction: 0.35,

		BeeAreaMax:    150,
		HornetAreaMin: 300,

		TrackMaxDistance: 100,
		TrackTimeout:     300 * time.Millisecond,
		HoverRadius:      50,
		HoverDuration:    time.Second,

		TriggerConfidence: 0.7,
		Cooldown:          2 * time.Second,

		LaserMaxOn:        10 * time.Second,
		LaserWindowBudget: 45 * time.Second,
		SweepAmplitudeDeg: 10,
		SweepCycles:       3,
		SweepFrequencyHz:  2,
		ServoRangeDeg:     15,
		ServoSettle:       45 * time.Millisecond,
		CameraFOVDeg:      62.2, // Pi camera module v2 horizontal FOV

		CameraTimeout: 2 * time.Second,

		ClipPreroll:     2 * time.Second,
		ClipPostroll:    2 * time.Second,
		StorageQuotaPct: 90,
		ClipDir:         "/var/lib/apisedge/clips",

		ListenAddr: ":8080",
		WebhookURL: "",
		LogLevel:   "info",
	}
}

// Load builds a Config from the environment on top of the defaults.
func Load() (Config, error) {
	cfg := Default()

	cfg.FrameWidth = envInt("APIS_FRAME_WIDTH", cfg.FrameWidth)
	cfg.FrameHeight = envInt("APIS_FRAME_HEIGHT", cfg.FrameHeight)
	cfg.FPS = envInt("APIS_FPS", cfg.FPS)

	cfg.MotionThreshold = uint8(envInt("APIS_MOTION_THRESHOLD", int(cfg.MotionThreshold)))
	cfg.BGLearningRate = envFloat("APIS_BG_LEARNING_RATE", cfg.BGLearningRate)
	cfg.MinRegionArea = envInt("APIS_MIN_REGION_AREA", cfg.MinRegionArea)
	cfg.MaxRegionArea = envInt("APIS_MAX_REGION_AREA", cfg.MaxRegionArea)
	cfg.GlobalChangeFraction = envFloat("APIS_GLOBAL_CHANGE_FRACTION", cfg.GlobalChangeFraction)

	cfg.BeeAreaMax = envInt("APIS_BEE_AREA_MAX", cfg.BeeAreaMax)
	cfg.HornetAreaMin = envInt("APIS_HORNET_AREA_MIN", cfg.HornetAreaMin)

	cfg.TrackMaxDistance = envFloat("APIS_TRACK_MAX_DISTANCE", cfg.TrackMaxDistance)
	cfg.TrackTimeout = envDuration("APIS_TRACK_TIMEOUT", cfg.TrackTimeout)
	cfg.HoverRadius = envFloat("APIS_HOVER_RADIUS", cfg.HoverRadius)
	cfg.HoverDuration = envDuration("APIS_HOVER_DURATION", cfg.HoverDuration)

	cfg.TriggerConfidence = envFloat("APIS_TRIGGER_CONFIDENCE", cfg.TriggerConfidence)
	cfg.Cooldown = envDuration("APIS_COOLDOWN", cfg.Cooldown)

	cfg.LaserMaxOn = envDuration("APIS_LASER_MAX_ON", cfg.LaserMaxOn)
	cfg.LaserWindowBudget = envDuration("APIS_LASER_WINDOW_BUDGET", cfg.LaserWindowBudget)
	cfg.SweepAmplitudeDeg = envFloat("APIS_SWEEP_AMPLITUDE", cfg.SweepAmplitudeDeg)
	cfg.SweepCycles = envInt("APIS_SWEEP_CYCLES", cfg.SweepCycles)
	cfg.SweepFrequencyHz = envFloat("APIS_SWEEP_FREQUENCY", cfg.SweepFrequencyHz)
	cfg.ServoRangeDeg = envFloat("APIS_SERVO_RANGE", cfg.ServoRangeDeg)
	cfg.ServoSettle = envDuration("APIS_SERVO_SETTLE", cfg.ServoSettle)
	cfg.CameraFOVDeg = envFloat("APIS_CAMERA_FOV", cfg.CameraFOVDeg)

	cfg.CameraTimeout = envDuration("APIS_CAMERA_TIMEOUT", cfg.CameraTimeout)

	cfg.ClipPreroll = envDuration("APIS_CLIP_PREROLL", cfg.ClipPreroll)
	cfg.ClipPostroll = envDuration("APIS_CLIP_POSTROLL", cfg.ClipPostroll)
	cfg.StorageQuotaPct = envInt("APIS_STORAGE_QUOTA_PCT", cfg.StorageQuotaPct)
	cfg.ClipDir = envString("APIS_CLIP_DIR", cfg.ClipDir)

	cfg.ListenAddr = envString("APIS_LISTEN_ADDR", cfg.ListenAddr)
	cfg.WebhookURL = envString("APIS_WEBHOOK_URL", cfg.WebhookURL)
	cfg.LogLevel = envString("APIS_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.FPS < 5 {
		return fmt.Errorf("fps %d below minimum of 5", c.FPS)
	}
	if c.BeeAreaMax >= c.HornetAreaMin {
		return fmt.Errorf("bee ceiling %d must be below hornet floor %d",
			c.BeeAreaMax, c.HornetAreaMin)
	}
	if c.TriggerConfidence <= 0 || c.TriggerConfidence > 1 {
		return fmt.Errorf("trigger confidence %.2f out of (0,1]", c.TriggerConfidence)
	}
	if c.LaserMaxOn <= 0 || c.LaserWindowBudget <= 0 {
		return fmt.Errorf("laser limits must be positive")
	}
	if c.LaserWindowBudget > time.Minute {
		return fmt.Errorf("laser window budget %s exceeds the rolling minute", c.LaserWindowBudget)
	}
	if c.StorageQuotaPct <= 0 || c.StorageQuotaPct > 100 {
		return fmt.Errorf("storage quota %d%% out of (0,100]", c.StorageQuotaPct)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
