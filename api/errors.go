package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/memorypalace/pkg/memory"
	"github.com/papercomputeco/memorypalace/pkg/processing"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`

	// Field names the invalid input of a validation failure.
	Field string `json:"field,omitempty"`

	// Stage names the failed remote operation so the caller can retry it.
	Stage memory.Stage `json:"stage,omitempty"`

	// Memory is the snapshot reached before the failure, when one exists.
	Memory *processing.MemoryView `json:"memory,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var (
		validationErr *memory.ValidationError
		remoteErr     *memory.RemoteError
		playbackErr   *memory.PlaybackError
	)

	switch {
	case errors.Is(err, memory.ErrBusy):
		return fiber.StatusConflict, resp
	case errors.As(err, &validationErr):
		resp.Field = validationErr.Field
		return fiber.StatusBadRequest, resp
	case errors.As(err, &remoteErr):
		resp.Stage = remoteErr.Stage
		return fiber.StatusBadGateway, resp
	case errors.As(err, &playbackErr):
		return fiber.StatusUnprocessableEntity, resp
	default:
		return fiber.StatusInternalServerError, resp
	}
}

func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status, resp := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(resp)
}

// writeErrorWithMemory reports err along with the snapshot the memory
// reached before the failure.
func (s *Server) writeErrorWithMemory(c *fiber.Ctx, err error, m memory.Memory) error {
	status, resp := statusFor(err)
	if m.ID != "" {
		view := s.view(m)
		resp.Memory = &view
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
