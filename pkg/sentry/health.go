package sentry

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/clips"
	"github.com/apisguard/edge/pkg/events"
)

// Health thresholds. Above either, /health reports degraded and a
// warning webhook fires once per onset.
const (
	tempWarnC      = 70.0
	storageWarnPct = 90.0
)

// HealthSnapshot is what /health serves. It is refreshed by the
// sampler, never computed per request.
type HealthSnapshot struct {
	Degraded   bool
	TempC      float64
	StoragePct int
	SampledAt  time.Time
}

// HealthSampler periodically reads the SoC temperature and clip-disk
// utilization.
type HealthSampler struct {
	tempPath string
	clipDir  string
	usage    clips.UsageFunc
	interval time.Duration
	notifier *events.Notifier

	mu   sync.Mutex
	snap HealthSnapshot

	tempWarnActive    bool
	storageWarnActive bool

	logger interface {
		Warn(msg string, args ...any)
	}
}

// NewHealthSampler builds a sampler. tempPath is the sysfs millidegree
// file (empty disables temperature sampling); usage nil means statfs.
func NewHealthSampler(tempPath, clipDir string, usage clips.UsageFunc,
	interval time.Duration, notifier *events.Notifier) *HealthSampler {

	if usage == nil {
		usage = clips.DiskUsage
	}
	return &HealthSampler{
		tempPath: tempPath,
		clipDir:  clipDir,
		usage:    usage,
		interval: interval,
		notifier: notifier,
		logger:   log.Component("health"),
	}
}

// Run samples until the context is canceled. One sample runs up front
// so /health is meaningful right after boot.
func (h *HealthSampler) Run(ctx context.Context) {
	h.Sample()
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Sample()
		}
	}
}

// Sample takes one reading and fires threshold webhooks on onset.
func (h *HealthSampler) Sample() {
	temp := h.readTemp()
	pct, err := h.usage(h.clipDir)
	if err != nil {
		h.logger.Warn("storage sample failed", "err", err)
	}

	h.mu.Lock()
	h.snap = HealthSnapshot{
		Degraded:   temp > tempWarnC || pct > storageWarnPct,
		TempC:      temp,
		StoragePct: int(pct + 0.5),
		SampledAt:  time.Now(),
	}
	tempOnset := temp > tempWarnC && !h.tempWarnActive
	h.tempWarnActive = temp > tempWarnC
	storageOnset := pct > storageWarnPct && !h.storageWarnActive
	h.storageWarnActive = pct > storageWarnPct
	h.mu.Unlock()

	// Warnings fire once per onset, not on every sample. Over-temp is
	// report-only; the device does not throttle itself.
	if tempOnset {
		h.logger.Warn("temperature above threshold", "temp_c", temp)
		h.notifier.Publish(events.KindTempWarning, events.PriorityWarning,
			"device temperature above 70C", nil)
	}
	if storageOnset {
		h.logger.Warn("storage above quota threshold", "pct", pct)
		h.notifier.Publish(events.KindStorageWarning, events.PriorityWarning,
			"clip storage above 90%", nil)
	}
}

// Snapshot returns the latest reading.
func (h *HealthSampler) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

// readTemp parses the sysfs thermal zone (millidegrees Celsius).
func (h *HealthSampler) readTemp() float64 {
	if h.tempPath == "" {
		return 0
	}
	raw, err := os.ReadFile(h.tempPath)
	if err != nil {
		return 0
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return float64(milli) / 1000
}
