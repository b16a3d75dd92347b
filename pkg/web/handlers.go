package web

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/apisguard/edge/pkg/clips"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.control.Status())
}

func (s *Server) handleArm(c *fiber.Ctx) error {
	s.control.SetArmed(true)
	return c.JSON(fiber.Map{"armed": true})
}

func (s *Server) handleDisarm(c *fiber.Ctx) error {
	s.control.SetArmed(false)
	return c.JSON(fiber.Map{"armed": false})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(s.control.Health())
}

// handleStream serves the live camera feed as multipart MJPEG. The
// stream rides the frame fan-out, so a viewer never contends with the
// detection loop for the camera.
func (s *Server) handleStream(c *fiber.Ctx) error {
	frames, cancel := s.frames.Subscribe()

	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for jp := range frames {
			if _, err := fmt.Fprintf(w,
				"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jp)); err != nil {
				return
			}
			if _, err := w.Write(jp); err != nil {
				return
			}
			if _, err := w.WriteString("\r\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

func (s *Server) handleListClips(c *fiber.Ctx) error {
	list, err := s.clips.List()
	if err != nil {
		s.logger.Warn("clip listing failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "clip listing failed"})
	}
	if list == nil {
		list = []clips.Metadata{}
	}
	return c.JSON(list)
}

func (s *Server) handleGetClip(c *fiber.Ctx) error {
	id := c.Params("id")
	f, meta, err := s.clips.Open(id)
	if err != nil {
		if errors.Is(err, clips.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"error": "clip not found"})
		}
		s.logger.Warn("clip open failed", "id", id, "err", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "clip open failed"})
	}

	c.Set(fiber.HeaderContentType, "video/x-motion-jpeg")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s.mjpeg"`, meta.ID))
	// fasthttp closes the file when the stream is drained.
	return c.SendStream(f)
}
