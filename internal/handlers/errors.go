package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/repositories"
	"alfredoptarigan/resume-coach/internal/services"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest    = "bad_request"
	CodeValidation    = "validation"
	CodeNotFound      = "not_found"
	CodeConflict      = "session_ended"
	CodeMicrophone    = "microphone_denied"
	CodeConfiguration = services.KindConfiguration
	CodeTransport     = services.KindTransport
	CodeRateLimited   = services.KindRateLimited
	CodeParse         = services.KindParse
	CodeInternal      = services.KindInternal
)

var validate = validator.New()

// StatusFor maps a service error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	var validationErrs validator.ValidationErrors
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErrs):
		return fiber.StatusBadRequest, CodeValidation
	case errors.Is(err, services.ErrMissingAPIKey):
		return fiber.StatusServiceUnavailable, CodeConfiguration
	case errors.Is(err, services.ErrParse):
		return fiber.StatusBadGateway, CodeParse
	case services.IsRateLimited(err):
		return fiber.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, services.ErrTransport):
		return fiber.StatusBadGateway, CodeTransport
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, services.ErrSessionNotFound):
		return fiber.StatusNotFound, CodeNotFound
	case errors.Is(err, services.ErrSessionEnded):
		return fiber.StatusConflict, CodeConflict
	case errors.Is(err, services.ErrMicrophoneDenied):
		return fiber.StatusForbidden, CodeMicrophone
	case errors.As(err, &fiberErr):
		if fiberErr.Code < fiber.StatusInternalServerError {
			return fiberErr.Code, CodeBadRequest
		}
		return fiberErr.Code, CodeInternal
	default:
		return fiber.StatusInternalServerError, CodeInternal
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status, code := StatusFor(err)
	return c.Status(status).JSON(models.ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: message,
		Code:  CodeBadRequest,
	})
}
