package camera

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/vision"
)

// Device captures frames from a V4L2 camera through OpenCV.
type Device struct {
	cfg  Config
	cap  *gocv.VideoCapture
	bgr  gocv.Mat
	gray gocv.Mat
}

// Open opens the capture device and applies the requested format. The
// driver may negotiate a different resolution; the actual size is read
// back per frame, so a mismatch degrades rather than breaks.
func Open(cfg Config) (*Device, error) {
	cap, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cfg.Device, err)
	}
	cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cap.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	log.Component("camera").Info("camera opened",
		"device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.FPS)

	return &Device{
		cfg:  cfg,
		cap:  cap,
		bgr:  gocv.NewMat(),
		gray: gocv.NewMat(),
	}, nil
}

// Next implements Source. It blocks on the driver for the next frame,
// converts it to grayscale for the pipeline and JPEG for the stream and
// clip recorder.
func (d *Device) Next(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return vision.Frame{}, err
	}
	if ok := d.cap.Read(&d.bgr); !ok || d.bgr.Empty() {
		return vision.Frame{}, fmt.Errorf("camera read failed on %s", d.cfg.Device)
	}
	ts := time.Now()

	gocv.CvtColor(d.bgr, &d.gray, gocv.ColorBGRToGray)

	// Copy out of the reused Mat: frames outlive the next Read.
	gray := make([]uint8, d.gray.Total())
	copy(gray, d.gray.ToBytes())

	frame, err := vision.NewFrame(ts, d.gray.Cols(), d.gray.Rows(), gray)
	if err != nil {
		return vision.Frame{}, err
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, d.bgr,
		[]int{gocv.IMWriteJpegQuality, d.cfg.JPEGQuality})
	if err != nil {
		// A failed encode costs the clip frame, not the detection.
		log.Component("camera").Warn("jpeg encode failed", "err", err)
	} else {
		frame.JPEG = append([]byte(nil), buf.GetBytes()...)
		buf.Close()
	}

	return frame, nil
}

// Close releases the device and the scratch buffers.
func (d *Device) Close() error {
	d.bgr.Close()
	d.gray.Close()
	return d.cap.Close()
}
