package control

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/nupi-ai/plugin-live-translate/internal/channel"
	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
	"github.com/nupi-ai/plugin-live-translate/internal/pipeline"
	"github.com/nupi-ai/plugin-live-translate/internal/telemetry"
)

// WelcomeMessage is returned by GET / once the loop is running.
const WelcomeMessage = "Welcome to the live translation relay!"

// Starter is the slice of *pipeline.Loop the control surface drives.
type Starter interface {
	Start(ctx context.Context) error
	State() pipeline.State
	Err() error
}

// Status is the body of GET /api/status.
type Status struct {
	Service   string             `json:"service"`
	Version   string             `json:"version"`
	State     string             `json:"state"`
	Running   bool               `json:"running"`
	Error     string             `json:"error,omitempty"`
	Telemetry telemetry.Snapshot `json:"telemetry"`
}

// New builds the control app. GET / triggers the transcription loop; repeated
// calls are harmless.
func New(loop Starter, recorder *telemetry.Recorder, logger *slog.Logger) *fiber.App {
	if loop == nil {
		panic("control: loop is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "control.App")

	app := fiber.New(fiber.Config{
		AppName:               moduleinfo.Info.Name,
		DisableStartupMessage: true,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		err := loop.Start(c.UserContext())
		if err == nil {
			return c.SendString(WelcomeMessage)
		}
		log.Warn("start request failed", "error", err)

		var connErr *channel.ConnectionError
		switch {
		case errors.As(err, &connErr):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, pipeline.ErrStopped):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	})

	app.Post("/api/echo", func(c *fiber.Ctx) error {
		var data any
		if err := c.BodyParser(&data); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		return c.JSON(fiber.Map{"received": data})
	})

	app.Get("/api/status", func(c *fiber.Ctx) error {
		state := loop.State()
		status := Status{
			Service:   moduleinfo.Info.Slug,
			Version:   moduleinfo.Info.Version,
			State:     state.String(),
			Running:   state.Running(),
			Telemetry: recorder.Snapshot(),
		}
		if err := loop.Err(); err != nil {
			status.Error = err.Error()
		}
		return c.JSON(status)
	})

	return app
}
