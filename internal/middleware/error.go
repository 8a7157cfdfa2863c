package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"topicq/internal/domain"
	"topicq/internal/logger"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Status    int                    `json:"status"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse represents validation error response
type ValidationErrorResponse struct {
	Code      string                   `json:"code"`
	Message   string                   `json:"message"`
	Status    int                      `json:"status"`
	RequestID string                   `json:"request_id,omitempty"`
	Errors    []domain.ValidationError `json:"errors"`
}

// ErrorHandler is a centralized error handling middleware
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		logger := logger.Get().With(zap.String("request_id", RequestID(c)))

		// Handle validation errors
		var validationErrs domain.ValidationErrors
		if errors.As(err, &validationErrs) {
			logger.Warn("Validation errors occurred",
				zap.String("path", c.Path()),
				zap.Int("error_count", len(validationErrs)),
			)
			return c.Status(http.StatusBadRequest).JSON(ValidationErrorResponse{
				Code:      string(domain.CodeValidation),
				Message:   "Request validation failed",
				Status:    http.StatusBadRequest,
				RequestID: RequestID(c),
				Errors:    validationErrs,
			})
		}

		// Handle domain errors
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			statusCode := mapDomainErrorToHTTPStatus(domainErr)

			if statusCode >= http.StatusInternalServerError {
				logger.Error("Domain error occurred",
					zap.String("code", string(domainErr.Code)),
					zap.String("message", domainErr.Message),
					zap.Int("status", statusCode),
					zap.Error(domainErr.Cause),
				)
			} else {
				logger.Warn("Domain error occurred",
					zap.String("code", string(domainErr.Code)),
					zap.String("message", domainErr.Message),
					zap.Int("status", statusCode),
				)
			}

			response := ErrorResponse{
				Code:      string(domainErr.Code),
				Message:   domainErr.Message,
				Status:    statusCode,
				RequestID: RequestID(c),
			}

			if len(domainErr.Context) > 0 {
				response.Details = domainErr.Context
			}

			return c.Status(statusCode).JSON(response)
		}

		// Upstream errors normally arrive wrapped in a DomainError; map stray ones by category.
		var upstreamErr *domain.UpstreamError
		if errors.As(err, &upstreamErr) {
			statusCode := mapUpstreamErrorToHTTPStatus(upstreamErr)
			logger.Error("Upstream error occurred",
				zap.String("category", string(upstreamErr.Category)),
				zap.Int("status", statusCode),
				zap.Error(upstreamErr),
			)
			return c.Status(statusCode).JSON(ErrorResponse{
				Code:      string(upstreamErr.Code()),
				Message:   "Quiz provider request failed",
				Status:    statusCode,
				RequestID: RequestID(c),
				Details:   map[string]interface{}{"category": string(upstreamErr.Category)},
			})
		}

		// Handle fiber errors
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			logger.Warn("Fiber error occurred",
				zap.Int("code", fiberErr.Code),
				zap.String("message", fiberErr.Message),
			)
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Code:      "HTTP_ERROR",
				Message:   fiberErr.Message,
				Status:    fiberErr.Code,
				RequestID: RequestID(c),
			})
		}

		// Handle unknown errors
		logger.Error("Unknown error occurred",
			zap.String("path", c.Path()),
			zap.Error(err),
		)

		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Code:      string(domain.CodeInternal),
			Message:   "Internal server error",
			Status:    http.StatusInternalServerError,
			RequestID: RequestID(c),
		})
	}
}

// mapDomainErrorToHTTPStatus maps domain errors to HTTP status codes
func mapDomainErrorToHTTPStatus(err *domain.DomainError) int {
	switch err.Code {
	case domain.CodeInvalidInput, domain.CodeValidation, domain.CodeMissingField,
		domain.CodeInvalidFormat, domain.CodeOutOfRange:
		return http.StatusBadRequest
	case domain.CodeCanceled:
		return http.StatusRequestTimeout
	case domain.CodeAllCredentialsExhausted, domain.CodeUpstreamQuotaExhausted,
		domain.CodeUpstreamOverloaded:
		return http.StatusServiceUnavailable
	case domain.CodeUpstreamForbidden, domain.CodeUpstreamMalformedResponse, domain.CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapUpstreamErrorToHTTPStatus(err *domain.UpstreamError) int {
	switch err.Category {
	case domain.CategoryQuota, domain.CategoryOverloaded:
		return http.StatusServiceUnavailable
	case domain.CategoryCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
