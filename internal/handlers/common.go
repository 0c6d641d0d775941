// Package handlers wires the HTTP routes onto the engine.
package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/types"
)

// parseBody decodes a JSON request body into a map. An empty body is an
// empty map.
func parseBody(c *fiber.Ctx) (map[string]interface{}, error) {
	body := c.Body()
	if len(body) == 0 {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, types.NewAPIErrorf(types.CodeInvalidJSON, "invalid JSON body: %v", err)
	}
	return out, nil
}

// parseQuery extracts the where clause and query options from the request
// query string.
func parseQuery(c *fiber.Ctx) (map[string]interface{}, engine.QueryOptions, error) {
	var opts engine.QueryOptions

	where := map[string]interface{}{}
	if raw := c.Query("where"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &where); err != nil {
			return nil, opts, types.NewAPIErrorf(types.CodeInvalidQuery, "invalid where clause: %v", err)
		}
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, opts, types.NewAPIErrorf(types.CodeInvalidQuery, "invalid limit: %s", raw)
		}
		opts.Limit = &n
	}
	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, opts, types.NewAPIErrorf(types.CodeInvalidQuery, "invalid skip: %s", raw)
		}
		opts.Skip = n
	}
	opts.Order = engine.ParseOrder(c.Query("order"))
	if raw := c.Query("count"); raw == "1" || raw == "true" {
		opts.Count = true
	}
	if raw := c.Query("include"); raw != "" {
		for _, path := range strings.Split(raw, ",") {
			if path = strings.TrimSpace(path); path != "" {
				opts.Include = append(opts.Include, path)
			}
		}
	}
	return where, opts, nil
}

// findPayload shapes the find response body.
func findPayload(result *engine.FindResult) fiber.Map {
	payload := fiber.Map{"results": result.Results}
	if result.Count != nil {
		payload["count"] = *result.Count
	}
	return payload
}
