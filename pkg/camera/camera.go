// Package camera captures frames for the detection pipeline. The gocv
// backend talks to the physical device; the synthetic source drives the
// same pipeline from generated pixels so everything downstream is
// testable without hardware.
package camera

import (
	"context"

	"github.com/apisguard/edge/pkg/vision"
)

// Source delivers frames one at a time. Next blocks until a frame is
// available, the context is canceled, or the capture fails. A Source is
// used by a single reader goroutine.
type Source interface {
	Next(ctx context.Context) (vision.Frame, error)
	Close() error
}

// Config holds capture parameters.
type Config struct {
	Device      string // V4L2 device path or numeric index
	Width       int
	Height      int
	FPS         int
	JPEGQuality int
}
