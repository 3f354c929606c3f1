package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, no_shard_coverage, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
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
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// mapRoutingError translates routing domain errors into API responses.
// Coverage and reachability problems are the client's to resolve (422);
// engine-reported errors pass through verbatim as 502; engine deadline
// overruns surface as 504.
func mapRoutingError(c *fiber.Ctx, err error) error {
	var noCov *domain.NoShardCoverageError
	if errors.As(err, &noCov) {
		return newError(c, fiber.StatusUnprocessableEntity, "no_shard_coverage", noCov.Error())
	}
	var unroutable *domain.UnroutableCrossShardError
	if errors.As(err, &unroutable) {
		return newError(c, fiber.StatusUnprocessableEntity, "unroutable_cross_shard", unroutable.Error())
	}
	var timeout *domain.BackendTimeoutError
	if errors.As(err, &timeout) {
		return newError(c, fiber.StatusGatewayTimeout, "backend_timeout", timeout.Error())
	}
	var backend *domain.BackendError
	if errors.As(err, &backend) {
		return newError(c, fiber.StatusBadGateway, "backend_error", backend.Error())
	}
	return errInternal(c, err.Error())
}
