package camera

import (
	"context"
	"errors"
	"time"

	"github.com/apisguard/edge/pkg/vision"
)

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("camera source closed")

// Synthetic generates frames by calling a draw function, paced at the
// configured FPS. It stands in for the device in tests and on machines
// without a camera.
type Synthetic struct {
	width    int
	height   int
	interval time.Duration
	closed   chan struct{}

	// Draw paints frame n into the pixel buffer (pre-zeroed, row-major
	// width*height). nil leaves every frame black.
	Draw func(n int, pix []uint8)

	// FailAfter, when positive, makes Next return an error once that
	// many frames have been produced. Exercises the camera-fault path.
	FailAfter int

	n int
}

// NewSynthetic builds a generated source. fps <= 0 disables pacing, so
// tests can pull frames as fast as they like.
func NewSynthetic(width, height, fps int) *Synthetic {
	var interval time.Duration
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &Synthetic{
		width:    width,
		height:   height,
		interval: interval,
		closed:   make(chan struct{}),
	}
}

// Next implements Source.
func (s *Synthetic) Next(ctx context.Context) (vision.Frame, error) {
	if s.FailAfter > 0 && s.n >= s.FailAfter {
		return vision.Frame{}, errors.New("synthetic capture fault")
	}
	if s.interval > 0 {
		select {
		case <-ctx.Done():
			return vision.Frame{}, ctx.Err()
		case <-s.closed:
			return vision.Frame{}, ErrSourceClosed
		case <-time.After(s.interval):
		}
	} else {
		select {
		case <-ctx.Done():
			return vision.Frame{}, ctx.Err()
		case <-s.closed:
			return vision.Frame{}, ErrSourceClosed
		default:
		}
	}

	pix := make([]uint8, s.width*s.height)
	if s.Draw != nil {
		s.Draw(s.n, pix)
	}
	s.n++
	return vision.NewFrame(time.Now(), s.width, s.height, pix)
}

// Close implements Source.
func (s *Synthetic) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
