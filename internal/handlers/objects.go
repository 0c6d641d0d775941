package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/middleware"
	"github.com/openbaas/corestore/internal/utils"
)

// ObjectHandler serves the /classes routes.
type ObjectHandler struct {
	Engine *engine.Engine
}

// CreateObject handles POST /api/classes/:className
func (h *ObjectHandler) CreateObject(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	result, err := h.Engine.Create(c.Context(), middleware.Identity(c), c.Params("className"), body)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result.Response)
}

// FindObjects handles GET /api/classes/:className
func (h *ObjectHandler) FindObjects(c *fiber.Ctx) error {
	where, opts, err := parseQuery(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	result, err := h.Engine.Find(c.Context(), middleware.Identity(c), c.Params("className"), where, opts)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(findPayload(result))
}

// GetObject handles GET /api/classes/:className/:objectId
func (h *ObjectHandler) GetObject(c *fiber.Ctx) error {
	_, opts, err := parseQuery(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	out, err := h.Engine.GetObject(c.Context(), middleware.Identity(c),
		c.Params("className"), c.Params("objectId"), opts.Include)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// UpdateObject handles PUT /api/classes/:className/:objectId
func (h *ObjectHandler) UpdateObject(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	result, err := h.Engine.Update(c.Context(), middleware.Identity(c),
		c.Params("className"), c.Params("objectId"), body)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result.Response)
}

// DeleteObject handles DELETE /api/classes/:className/:objectId
func (h *ObjectHandler) DeleteObject(c *fiber.Ctx) error {
	err := h.Engine.Destroy(c.Context(), middleware.Identity(c),
		c.Params("className"), c.Params("objectId"))
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{})
}
