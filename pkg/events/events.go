// Package events defines the device's outward-facing event model: the
// immutable DetectionEvent record, the local JSONL event log it is
// appended to, and the best-effort webhook channel that forwards events
// to the configured portal.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a webhook event.
type Kind string

// Webhook event kinds.
const (
	KindBoot           Kind = "boot"
	KindCameraError    Kind = "camera_error"
	KindStorageWarning Kind = "storage_warning"
	KindTempWarning    Kind = "temp_warning"
	KindDetection      Kind = "detection"
	KindShutdown       Kind = "shutdown"
)

// Priority grades a webhook event.
type Priority string

// Webhook priorities.
const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
)

// DetectionEvent is the immutable record of one confirmed detection.
// It is created by the decision engine when a deterrence is commanded
// and forwarded to the clip recorder, the event log and the webhook
// channel. ClipID is filled in by the clip recorder if a clip was
// persisted; it stays empty when recording is degraded.
type DetectionEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	TrackID       uint32    `json:"track_id"`
	Confidence    float64   `json:"confidence"`
	ServoAngleDeg float64   `json:"servo_angle_deg"`
	LaserFired    bool      `json:"laser_fired"`
	ClipID        string    `json:"clip_id,omitempty"`
}

// NewDetectionEvent mints an event with a fresh ID.
func NewDetectionEvent(ts time.Time, trackID uint32, confidence, angleDeg float64, fired bool) DetectionEvent {
	return DetectionEvent{
		ID:            uuid.NewString(),
		Timestamp:     ts,
		TrackID:       trackID,
		Confidence:    confidence,
		ServoAngleDeg: angleDeg,
		LaserFired:    fired,
	}
}
