// Package utils holds shared HTTP response helpers.
package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/openbaas/corestore/internal/types"
)

// ErrorResponseStruct documents the error payload shape.
type ErrorResponseStruct struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// HTTPStatusForCode maps an API error code to the HTTP status it travels
// under.
func HTTPStatusForCode(code int) int {
	switch code {
	case types.CodeObjectNotFound:
		return fiber.StatusNotFound
	case types.CodeOperationForbidden:
		return fiber.StatusForbidden
	case types.CodeInvalidSessionToken:
		return fiber.StatusUnauthorized
	case types.CodeInternalServerError:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusBadRequest
	}
}

// APIErrorResponse writes an engine error in the wire format
// {"code": n, "error": "..."} with the mapped HTTP status.
func APIErrorResponse(c *fiber.Ctx, err error) error {
	var apiErr *types.APIError
	if !errors.As(err, &apiErr) {
		apiErr = types.AsAPIError(err)
	}
	return c.Status(HTTPStatusForCode(apiErr.Code)).JSON(apiErr)
}

// ErrorResponse writes an ad-hoc error payload.
func ErrorResponse(c *fiber.Ctx, code int, message string) error {
	return c.Status(HTTPStatusForCode(code)).JSON(ErrorResponseStruct{Code: code, Error: message})
}
