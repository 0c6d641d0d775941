// Package middleware resolves the acting identity for each request.
package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/utils"
)

// Request headers carrying credentials.
const (
	HeaderMasterKey    = "X-Master-Key"
	HeaderSessionToken = "X-Session-Token"
)

const identityKey = "identity"

// Auth resolves the request credentials into an engine identity and stores
// it in the request locals. Requests without credentials proceed as the
// public identity; a bad session token fails the request.
func Auth(cfg *config.Config, eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get(HeaderMasterKey); key != "" && key == cfg.MasterKey {
			c.Locals(identityKey, engine.MasterIdentity())
			return c.Next()
		}

		token := c.Get(HeaderSessionToken)
		identity, err := eng.Authenticate(c.Context(), token)
		if err != nil {
			return utils.APIErrorResponse(c, err)
		}
		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// Identity returns the identity resolved by Auth, or the public identity
// when the middleware did not run.
func Identity(c *fiber.Ctx) engine.Identity {
	if id, ok := c.Locals(identityKey).(engine.Identity); ok {
		return id
	}
	return engine.Nobody()
}
