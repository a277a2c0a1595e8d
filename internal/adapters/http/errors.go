package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int               `json:"status"`
	Code      string            `json:"code"`    // bad_request, validation_failed, not_found, internal_error
	Message   string            `json:"message"` // Human-readable message
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errValidation returns a 400 error listing the offending fields.
func errValidation(c *fiber.Ctx, verr *domain.ValidationError) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(fiber.StatusBadRequest).JSON(APIError{
		Status:    fiber.StatusBadRequest,
		Code:      "validation_failed",
		Message:   verr.Error(),
		Fields:    verr.Fields,
		RequestID: reqID,
	})
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error. The cause is logged, not returned.
func errInternal(c *fiber.Ctx, cause error) error {
	slog.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "error", cause)
	return newError(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
}

// respondError maps a service error onto an HTTP response.
func respondError(c *fiber.Ctx, err error, notFoundMsg string) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return errValidation(c, verr)
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, notFoundMsg)
	case errors.Is(err, domain.ErrConflict):
		return newError(c, fiber.StatusConflict, "conflict", err.Error())
	default:
		return errInternal(c, err)
	}
}
