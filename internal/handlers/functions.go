package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/middleware"
	"github.com/openbaas/corestore/internal/utils"
)

// FunctionHandler serves the /functions routes.
type FunctionHandler struct {
	Engine *engine.Engine
}

// CallFunction handles POST /api/functions/:name
func (h *FunctionHandler) CallFunction(c *fiber.Ctx) error {
	params, err := parseBody(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	result, err := h.Engine.RunFunction(c.Context(), middleware.Identity(c), c.Params("name"), params)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"result": result})
}
