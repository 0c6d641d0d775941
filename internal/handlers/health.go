package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/services"
)

// HealthHandler serves GET /health.
type HealthHandler struct {
	Cfg *config.Config
	DB  *gorm.DB
}

// Health reports service and database status.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Cfg, h.DB)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
