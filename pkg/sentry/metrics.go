package sentry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the device's instrumentation, served on /metrics.
type Metrics struct {
	FramesProcessed prometheus.Counter
	MotionRegions   prometheus.Counter
	ActiveTracks    prometheus.Gauge
	Detections      prometheus.Counter
	LaserFirings    prometheus.Counter
	DutyRefusals    prometheus.Counter
	CameraFaults    prometheus.Counter
	WebhooksDropped prometheus.Counter
}

// NewMetrics registers the collectors on the given registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_frames_processed_total",
			Help: "Frames consumed by the detection pipeline.",
		}),
		MotionRegions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_motion_regions_total",
			Help: "Motion regions extracted after filtering.",
		}),
		ActiveTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apisedge_active_tracks",
			Help: "Live tracks in the hover tracker.",
		}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_detections_total",
			Help: "Confirmed detections that commanded a deterrence.",
		}),
		LaserFirings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_laser_firings_total",
			Help: "Laser activations.",
		}),
		DutyRefusals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_duty_refusals_total",
			Help: "Deterrences refused because the duty-cycle budget was spent.",
		}),
		CameraFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_camera_faults_total",
			Help: "Camera fault onsets.",
		}),
		WebhooksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apisedge_webhooks_dropped_total",
			Help: "Webhook payloads discarded because the queue was full.",
		}),
	}
	reg.MustRegister(
		m.FramesProcessed, m.MotionRegions, m.ActiveTracks, m.Detections,
		m.LaserFirings, m.DutyRefusals, m.CameraFaults, m.WebhooksDropped,
	)
	return m
}
