package clips

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"time"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/vision"
)

// Recorder keeps a rolling pre-roll buffer of recent frames and, on a
// confirmed detection, captures the pre-roll plus a post-roll before
// handing the clip to the store. Push is called from the pipeline
// goroutine; file writes happen on the Run goroutine so a slow disk
// never stalls detection.
type Recorder struct {
	store *Store
	pre   time.Duration
	post  time.Duration

	ring    []bufFrame
	pending *capture
	saves   chan saveJob

	// StorageFull is called when a clip write is skipped because the
	// quota cannot be met (webhook hook, may be nil).
	StorageFull func()

	logger interface {
		Warn(msg string, args ...any)
	}
}

type bufFrame struct {
	ts   time.Time
	jpeg []byte
}

type capture struct {
	meta   Metadata
	until  time.Time
	frames [][]byte
}

type saveJob struct {
	meta   Metadata
	frames [][]byte
}

// NewRecorder builds a recorder with the given pre/post-roll.
func NewRecorder(store *Store, pre, post time.Duration) *Recorder {
	return &Recorder{
		store:  store,
		pre:    pre,
		post:   post,
		saves:  make(chan saveJob, 4),
		logger: log.Component("clips"),
	}
}

// Push feeds the next frame. Frames older than the pre-roll fall off
// the ring; an in-progress capture collects until its deadline.
func (r *Recorder) Push(f vision.Frame) {
	jp := encodeFrame(f)
	if jp == nil {
		return
	}
	r.ring = append(r.ring, bufFrame{ts: f.Timestamp, jpeg: jp})
	cutoff := f.Timestamp.Add(-r.pre)
	i := 0
	for i < len(r.ring) && r.ring[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.ring = append(r.ring[:0], r.ring[i:]...)
	}

	if r.pending == nil {
		return
	}
	r.pending.frames = append(r.pending.frames, jp)
	if !f.Timestamp.Before(r.pending.until) {
		c := r.pending
		r.pending = nil
		c.meta.Frames = len(c.frames)
		c.meta.DurationSec = c.until.Sub(c.meta.Timestamp.Add(-r.pre)).Seconds()
		select {
		case r.saves <- saveJob{meta: c.meta, frames: c.frames}:
		default:
			r.logger.Warn("clip save queue full, dropping clip", "id", c.meta.ID)
		}
	}
}

// Begin starts capturing a clip around a detection at ts. The returned
// id is usable immediately as the event's clip reference. A detection
// arriving while a capture is already running extends the running clip
// instead of starting a second one, and returns its id.
func (r *Recorder) Begin(ts time.Time, trackID uint32, confidence float64) string {
	if r.pending != nil {
		r.pending.until = ts.Add(r.post)
		return r.pending.meta.ID
	}

	id := NewID()
	c := &capture{
		meta: Metadata{
			ID:         id,
			Timestamp:  ts,
			TrackID:    trackID,
			Confidence: confidence,
		},
		until: ts.Add(r.post),
	}
	// Seed with the pre-roll already in the ring.
	for _, bf := range r.ring {
		c.frames = append(c.frames, bf.jpeg)
	}
	r.pending = c
	return id
}

// Run drains the save queue until the context is canceled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.saves:
			if err := r.store.Save(job.meta, job.frames); err != nil {
				r.logger.Warn("clip save failed", "id", job.meta.ID, "err", err)
				if errors.Is(err, ErrStorageFull) && r.StorageFull != nil {
					r.StorageFull()
				}
			}
		}
	}
}

// encodeFrame returns the frame's JPEG, encoding the grayscale buffer
// when the source produced no hardware JPEG.
func encodeFrame(f vision.Frame) []byte {
	if f.JPEG != nil {
		return f.JPEG
	}
	img := &image.Gray{
		Pix:    f.Gray,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}
