// Package web is the device control surface: a small fiber server on
// the local network exposing status, arm/disarm, health, the MJPEG
// stream, stored clips, metrics and a live event websocket. Handlers
// are stateless; everything they serve comes from the sentry and the
// clip store.
package web

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/clips"
	"github.com/apisguard/edge/pkg/hub"
)

// Status is the /status response.
type Status struct {
	Armed           bool `json:"armed"`
	UptimeSec       int  `json:"uptime"`
	DetectionsToday int  `json:"detections_today"`
}

// Health is the /health response.
type Health struct {
	Status     string  `json:"status"` // "ok" or "degraded"
	Temp       float64 `json:"temp"`
	StoragePct int     `json:"storage_pct"`
}

// Controller is the slice of the sentry the handlers need.
type Controller interface {
	Status() Status
	SetArmed(armed bool)
	Health() Health
}

// ClipStore serves recorded clips.
type ClipStore interface {
	List() ([]clips.Metadata, error)
	Open(id string) (*os.File, clips.Metadata, error)
}

// Server is the control surface.
type Server struct {
	app     *fiber.App
	control Controller
	clips   ClipStore
	frames  *hub.FrameBus
	events  *hub.Hub
	logger  interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
	}
}

// New wires the routes. registry may be nil to disable /metrics.
func New(control Controller, store ClipStore, frames *hub.FrameBus,
	events *hub.Hub, registry *prometheus.Registry) *Server {

	s := &Server{
		control: control,
		clips:   store,
		frames:  frames,
		events:  events,
		logger:  log.Component("web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "apisedge",
		DisableStartupMessage: true,
	})

	// The portal runs on another origin on the LAN.
	app.Use(cors.New())

	app.Get("/status", s.handleStatus)
	app.Post("/arm", s.handleArm)
	app.Post("/disarm", s.handleDisarm)
	app.Get("/health", s.handleHealth)
	app.Get("/stream", s.handleStream)
	app.Get("/clips", s.handleListClips)
	app.Get("/clips/:id", s.handleGetClip)

	if registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Listen serves until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("control surface listening", "addr", addr)
	go s.events.Run()
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleEventsWS attaches a subscriber to the event hub.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	client.Run()
}
