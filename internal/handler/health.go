package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gallerysync/api/pkg/response"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	services := fiber.Map{}
	healthy := true
	for name, check := range h.checks {
		ok := check(ctx) == nil
		services[name] = ok
		healthy = healthy && ok
	}

	if !healthy {
		return response.Unavailable(c, fiber.Map{"status": "degraded", "services": services})
	}
	return response.OK(c, fiber.Map{"status": "ok", "services": services})
}
