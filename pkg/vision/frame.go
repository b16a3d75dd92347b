// Package vision implements the frame-level half of the detection
// pipeline: background subtraction against a slowly adapting reference
// model and connected-component extraction of moving regions.
//
// The pipeline operates on plain grayscale byte buffers so every stage
// can be driven by synthetic frames in tests. Camera hardware and JPEG
// codecs live in pkg/camera; nothing in this package touches a device.
package vision

import (
	"fmt"
	"image"
	"time"
)

// Frame is a single captured image. Frames are immutable once captured
// and handed through the pipeline by value; the pixel buffer is owned by
// whichever stage currently holds the frame and must not be written to.
type Frame struct {
	Timestamp time.Time
	Width     int
	Height    int

	// Gray is the grayscale pixel buffer, row-major, Width*Height bytes.
	Gray []uint8

	// JPEG optionally carries the encoded original frame when the
	// source produced one (hardware MJPEG). Used by the clip recorder
	// and the stream fan-out; nil for synthetic frames.
	JPEG []byte
}

// NewFrame builds a frame around an existing grayscale buffer.
func NewFrame(ts time.Time, w, h int, gray []uint8) (Frame, error) {
	if len(gray) != w*h {
		return Frame{}, fmt.Errorf("gray buffer is %d bytes, want %d for %dx%d",
			len(gray), w*h, w, h)
	}
	return Frame{Timestamp: ts, Width: w, Height: h, Gray: gray}, nil
}

// At returns the grayscale value at (x, y). Out-of-bounds reads return 0.
func (f Frame) At(x, y int) uint8 {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return 0
	}
	return f.Gray[y*f.Width+x]
}

// Mask is a binary foreground mask produced by the motion detector.
// Nonzero bytes are foreground.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// Region is a connected motion region extracted from a mask.
type Region struct {
	Centroid image.Point
	Area     int
	Bounds   image.Rectangle
}

// AspectRatio returns the width/height ratio of the bounding box.
func (r Region) AspectRatio() float64 {
	h := r.Bounds.Dy()
	if h == 0 {
		h = 1
	}
	return float64(r.Bounds.Dx()) / float64(h)
}
