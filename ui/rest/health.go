package rest

import (
	"context"
	"time"

	"github.com/AzielCF/az-connect/pkg/msgworker"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency (database, valkey).
type HealthCheck func(ctx context.Context) error

type Health struct {
	Version string
	Checks  map[string]HealthCheck
	Queue   func() msgworker.QueueStats
	started time.Time
}

func InitRestHealth(app fiber.Router, version string, checks map[string]HealthCheck, queue func() msgworker.QueueStats) *Health {
	handler := &Health{Version: version, Checks: checks, Queue: queue, started: time.Now()}
	app.Get("/health", handler.GetStatus)
	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	results := fiber.Map{
		"version": h.Version,
		"uptime":  time.Since(h.started).Truncate(time.Second).String(),
		"checks":  checks,
	}
	if h.Queue != nil {
		results["queue"] = h.Queue()
	}

	code, message := "SUCCESS", "Service healthy"
	if status != fiber.StatusOK {
		code, message = "UNHEALTHY", "One or more dependencies are failing"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: message,
		Results: results,
	})
}
