package middleware

import (
	"topicq/internal/dto"
	"topicq/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const (
	validatedQuizRequestKey   = "validated_quiz_request"
	validatedResumeRequestKey = "validated_resume_request"
)

// ValidationMiddleware parses and validates request bodies before they reach handlers
type ValidationMiddleware struct {
	validator *validation.Validator
}

// NewValidationMiddleware creates a new validation middleware instance
func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validation.NewValidator(),
	}
}

// ValidateGenerateQuizRequest validates the body of POST /api/quiz
func (vm *ValidationMiddleware) ValidateGenerateQuizRequest() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.GenerateQuizRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if errors := vm.validator.ValidateGenerateQuizRequest(req.Topic, req.Difficulty); len(errors) > 0 {
			return errors // This will be handled by ErrorHandler middleware
		}

		c.Locals(validatedQuizRequestKey, &req)
		return c.Next()
	}
}

// ValidateResumeQuizRequest validates the body of POST and DELETE /api/resume-quiz
func (vm *ValidationMiddleware) ValidateResumeQuizRequest() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.ResumeQuizRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if errors := vm.validator.ValidateResumeQuizRequest(req.TechnicalSkills, req.ExperienceYears, req.Filename); len(errors) > 0 {
			return errors
		}

		c.Locals(validatedResumeRequestKey, &req)
		return c.Next()
	}
}

// GenerateQuizRequestFrom returns the body stored by ValidateGenerateQuizRequest
func GenerateQuizRequestFrom(c *fiber.Ctx) (*dto.GenerateQuizRequest, bool) {
	req, ok := c.Locals(validatedQuizRequestKey).(*dto.GenerateQuizRequest)
	return req, ok
}

// ResumeQuizRequestFrom returns the body stored by ValidateResumeQuizRequest
func ResumeQuizRequestFrom(c *fiber.Ctx) (*dto.ResumeQuizRequest, bool) {
	req, ok := c.Locals(validatedResumeRequestKey).(*dto.ResumeQuizRequest)
	return req, ok
}
