package handlers

import (
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/middleware"
	"github.com/openbaas/corestore/internal/utils"
)

// NewApp assembles the fiber application: global middleware, metrics and
// all API routes. db may be nil when the in-memory store is active.
func NewApp(cfg *config.Config, eng *engine.Engine, db *gorm.DB) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	prometheus := fiberprometheus.New(cfg.AppName)
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	healthHandler := &HealthHandler{Cfg: cfg, DB: db}
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api")
	api.Use(middleware.Auth(cfg, eng))

	objectHandler := &ObjectHandler{Engine: eng}
	api.Post("/classes/:className", objectHandler.CreateObject)
	api.Get("/classes/:className", objectHandler.FindObjects)
	api.Get("/classes/:className/:objectId", objectHandler.GetObject)
	api.Put("/classes/:className/:objectId", objectHandler.UpdateObject)
	api.Delete("/classes/:className/:objectId", objectHandler.DeleteObject)

	userHandler := &UserHandler{Engine: eng}
	api.Post("/users", userHandler.SignUp)
	api.Get("/users/me", userHandler.Me)
	api.Get("/users/:objectId", userHandler.GetUser)
	api.Put("/users/:objectId", userHandler.UpdateUser)
	api.Delete("/users/:objectId", userHandler.DeleteUser)
	api.Post("/login", userHandler.Login)
	api.Post("/logout", userHandler.Logout)
	api.Get("/verify_email", userHandler.VerifyEmail)

	functionHandler := &FunctionHandler{Engine: eng}
	api.Post("/functions/:name", functionHandler.CallFunction)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	return app
}

// errorHandler handles errors globally.
func errorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"status":    e.Code,
			"message":   e.Message,
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	}
	return utils.APIErrorResponse(c, err)
}
