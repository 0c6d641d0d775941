package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/middleware"
	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/utils"
)

// UserHandler serves the /users, /login and /logout routes.
type UserHandler struct {
	Engine *engine.Engine
}

// SignUp handles POST /api/users
func (h *UserHandler) SignUp(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	result, err := h.Engine.Create(c.Context(), middleware.Identity(c), engine.UserClass, body)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result.Response)
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(c *fiber.Ctx) error {
	identity := middleware.Identity(c)
	if identity.User == nil {
		return utils.ErrorResponse(c, types.CodeInvalidSessionToken, "Invalid session token")
	}
	out, err := h.Engine.GetObject(c.Context(), identity, engine.UserClass, identity.UserID(), nil)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// GetUser handles GET /api/users/:objectId
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	out, err := h.Engine.GetObject(c.Context(), middleware.Identity(c),
		engine.UserClass, c.Params("objectId"), nil)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// UpdateUser handles PUT /api/users/:objectId
func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	result, err := h.Engine.Update(c.Context(), middleware.Identity(c),
		engine.UserClass, c.Params("objectId"), body)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result.Response)
}

// DeleteUser handles DELETE /api/users/:objectId
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	err := h.Engine.Destroy(c.Context(), middleware.Identity(c),
		engine.UserClass, c.Params("objectId"))
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{})
}

// Login handles POST /api/login
func (h *UserHandler) Login(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	username, _ := body["username"].(string)
	password, _ := body["password"].(string)
	out, err := h.Engine.Login(c.Context(), username, password)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// Logout handles POST /api/logout
func (h *UserHandler) Logout(c *fiber.Ctx) error {
	token := c.Get(middleware.HeaderSessionToken)
	if err := h.Engine.Logout(c.Context(), token); err != nil {
		return utils.APIErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{})
}

// VerifyEmail handles GET /api/verify_email?username=...&token=...
func (h *UserHandler) VerifyEmail(c *fiber.Ctx) error {
	username := c.Query("username")
	token := c.Query("token")
	outcome, err := h.Engine.VerifyEmail(c.Context(), username, token)
	if err != nil {
		return utils.APIErrorResponse(c, err)
	}
	if outcome != engine.VerifySucceeded {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": "invalid_link",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "verified",
		"username": username,
	})
}
