package vision

import (
	"github.com/apisguard/edge/internal/log"
)

// warmupFrames is how long the detector learns the background at the
// accelerated rate before switching to the configured one. During the
// first few frames no mask is produced at all: the model has not seen
// enough of the scene to subtract it.
const (
	warmupFrames    = 100
	warmupRate      = 0.05
	minMaskedFrames = 2
)

// MotionConfig holds the tunables for background subtraction.
type MotionConfig struct {
	Width        int
	Height       int
	Threshold    uint8   // absolute grayscale difference that counts as motion
	LearningRate float64 // EMA alpha once the warm-up period is over
}

// Detector maintains a per-pixel exponential moving average of the scene
// and thresholds each new frame against it. The model adapts slowly so
// lighting drift is absorbed without ever fully "learning" an object
// that stops moving into the background within a few frames.
//
// Not safe for concurrent use: one detector per capture loop.
type Detector struct {
	cfg        MotionConfig
	background []float64
	mask       []uint8
	scratch    []uint8
	frameCount int
}

// NewDetector allocates a detector for the given frame geometry.
func NewDetector(cfg MotionConfig) *Detector {
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		log.Warn("invalid background learning rate, using 0.001", "rate", cfg.LearningRate)
		cfg.LearningRate = 0.001
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 25
	}
	n := cfg.Width * cfg.Height
	return &Detector{
		cfg:        cfg,
		background: make([]float64, n),
		mask:       make([]uint8, n),
		scratch:    make([]uint8, n),
	}
}

// Process folds a frame into the background model and returns the binary
// motion mask. ok is false while the model is still warming up.
//
// The returned mask aliases internal storage and is only valid until the
// next Process call; the pipeline consumes it synchronously.
func (d *Detector) Process(f Frame) (Mask, bool) {
	if f.Width != d.cfg.Width || f.Height != d.cfg.Height {
		log.Warn("frame geometry mismatch, dropping",
			"got_w", f.Width, "got_h", f.Height,
			"want_w", d.cfg.Width, "want_h", d.cfg.Height)
		return Mask{}, false
	}

	d.frameCount++

	if d.frameCount == 1 {
		// First frame seeds the model directly.
		for i, v := range f.Gray {
			d.background[i] = float64(v)
		}
		return Mask{}, false
	}

	alpha := d.cfg.LearningRate
	if d.frameCount <= warmupFrames {
		alpha = warmupRate
	}
	inv := 1 - alpha

	thresh := int(d.cfg.Threshold)
	for i, v := range f.Gray {
		bg := d.background[i]
		diff := int(v) - int(bg+0.5)
		if diff < 0 {
			diff = -diff
		}
		if diff > thresh {
			d.mask[i] = 255
		} else {
			d.mask[i] = 0
		}
		d.background[i] = alpha*float64(v) + inv*bg
	}

	if d.frameCount <= minMaskedFrames {
		return Mask{}, false
	}

	d.zeroBorder()

	// Morphological opening removes single-pixel noise, closing fills
	// small holes so one insect does not label as several regions.
	d.erode()
	d.dilate()
	d.dilate()
	d.erode()

	return Mask{Width: d.cfg.Width, Height: d.cfg.Height, Pix: d.mask}, true
}

// Reset discards the background model, e.g. after a camera restart.
func (d *Detector) Reset() {
	d.frameCount = 0
	for i := range d.background {
		d.background[i] = 0
	}
}

// zeroBorder clears the one-pixel frame border. The morphological passes
// skip border pixels, so without this the edges produce inconsistent
// detections.
func (d *Detector) zeroBorder() {
	w, h := d.cfg.Width, d.cfg.Height
	for x := 0; x < w; x++ {
		d.mask[x] = 0
		d.mask[(h-1)*w+x] = 0
	}
	for y := 1; y < h-1; y++ {
		d.mask[y*w] = 0
		d.mask[y*w+w-1] = 0
	}
}

// erode applies one 3x3 cross-kernel erosion pass to the mask.
func (d *Detector) erode() {
	w, h := d.cfg.Width, d.cfg.Height
	copy(d.scratch, d.mask)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if d.scratch[i] == 0 ||
				d.scratch[i-w] == 0 || d.scratch[i+w] == 0 ||
				d.scratch[i-1] == 0 || d.scratch[i+1] == 0 {
				d.mask[i] = 0
			}
		}
	}
}

// dilate applies one 3x3 cross-kernel dilation pass to the mask.
func (d *Detector) dilate() {
	w, h := d.cfg.Width, d.cfg.Height
	copy(d.scratch, d.mask)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if d.scratch[i] == 255 ||
				d.scratch[i-w] == 255 || d.scratch[i+w] == 255 ||
				d.scratch[i-1] == 255 || d.scratch[i+1] == 255 {
				d.mask[i] = 255
			}
		}
	}
}
