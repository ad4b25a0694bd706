package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/aquafarm-service/internal/persistence"
)

// HealthHandler exposes liveness/readiness probes.
type HealthHandler struct {
	redis *persistence.Redis
}

// NewHealthHandler constructs handler.
func NewHealthHandler(redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{redis: redis}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "redis": "unreachable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
