package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"topicq/internal/credential"
	"topicq/internal/domain"
	"topicq/internal/dto"
	"topicq/internal/logger"
	"topicq/internal/middleware"
)

const healthPingTimeout = 2 * time.Second

// TopicQuizGenerator produces a quiz for a free-form topic
type TopicQuizGenerator interface {
	GenerateQuiz(ctx context.Context, topic, difficulty string) (*domain.QuizDocument, error)
}

// ResumeQuizGenerator produces a personalised interview quiz
type ResumeQuizGenerator interface {
	GenerateResumeQuiz(ctx context.Context, skills []string, experienceYears int, filename string) (*domain.ResumeQuiz, error)
	InvalidateResumeQuiz(ctx context.Context, skills []string, experienceYears int, filename string) error
}

// CredentialReporter exposes the credential pool state
type CredentialReporter interface {
	Len() int
	Snapshot() []credential.CredentialStatus
}

// Pinger checks a backing store. Nil means the store is not configured.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QuizHandler handles quiz-related HTTP requests
type QuizHandler struct {
	quizzes     TopicQuizGenerator
	resume      ResumeQuizGenerator
	credentials CredentialReporter
	cache       Pinger
}

// NewQuizHandler creates a new QuizHandler instance
func NewQuizHandler(quizzes TopicQuizGenerator, resume ResumeQuizGenerator, credentials CredentialReporter, cache Pinger) *QuizHandler {
	return &QuizHandler{
		quizzes:     quizzes,
		resume:      resume,
		credentials: credentials,
		cache:       cache,
	}
}

// RegisterRoutes mounts the quiz routes on app
func (h *QuizHandler) RegisterRoutes(app fiber.Router) {
	vm := middleware.NewValidationMiddleware()

	app.Get("/health", h.Health)

	api := app.Group("/api")
	api.Post("/quiz", vm.ValidateGenerateQuizRequest(), h.GenerateQuiz)
	api.Post("/resume-quiz", vm.ValidateResumeQuizRequest(), h.GenerateResumeQuiz)
	api.Delete("/resume-quiz", vm.ValidateResumeQuizRequest(), h.InvalidateResumeQuiz)
	api.Get("/credentials", h.GetCredentials)
}

// GenerateQuiz godoc
// @Summary Generate a topic quiz
// @Description Generates a multiple-choice quiz about a topic at the requested difficulty
// @Tags quiz
// @Accept json
// @Produce json
// @Param request body dto.GenerateQuizRequest true "Topic and difficulty"
// @Success 200 {object} dto.QuizResponse
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /quiz [post]
func (h *QuizHandler) GenerateQuiz(c *fiber.Ctx) error {
	req, ok := middleware.GenerateQuizRequestFrom(c)
	if !ok {
		return domain.NewInvalidInputError("missing quiz request")
	}

	doc, err := h.quizzes.GenerateQuiz(c.UserContext(), req.Topic, req.Difficulty)
	if err != nil {
		return err
	}

	return c.JSON(dto.QuizResponse{
		QuizDocument: doc,
		RequestID:    middleware.RequestID(c),
	})
}

// GenerateResumeQuiz godoc
// @Summary Generate a resume quiz
// @Description Generates interview questions from skills extracted from a resume
// @Tags quiz
// @Accept json
// @Produce json
// @Param request body dto.ResumeQuizRequest true "Extracted resume data"
// @Success 200 {object} dto.ResumeQuizResponse
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /resume-quiz [post]
func (h *QuizHandler) GenerateResumeQuiz(c *fiber.Ctx) error {
	req, ok := middleware.ResumeQuizRequestFrom(c)
	if !ok {
		return domain.NewInvalidInputError("missing resume quiz request")
	}

	quiz, err := h.resume.GenerateResumeQuiz(c.UserContext(), req.TechnicalSkills, req.ExperienceYears, req.Filename)
	if err != nil {
		return err
	}

	if quiz.Degraded {
		logger.Get().Warn("Returning degraded resume quiz",
			zap.String("request_id", middleware.RequestID(c)),
			zap.Int("total_questions", quiz.TotalQuestions),
			zap.Int("requested_questions", quiz.RequestedQuestions),
		)
	}

	return c.JSON(dto.ResumeQuizResponse{
		ResumeQuiz: quiz,
		RequestID:  middleware.RequestID(c),
	})
}

// InvalidateResumeQuiz godoc
// @Summary Drop a cached resume quiz
// @Description Removes the cached quiz for the given resume data so the next request regenerates it
// @Tags quiz
// @Accept json
// @Param request body dto.ResumeQuizRequest true "Extracted resume data"
// @Success 204
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /resume-quiz [delete]
func (h *QuizHandler) InvalidateResumeQuiz(c *fiber.Ctx) error {
	req, ok := middleware.ResumeQuizRequestFrom(c)
	if !ok {
		return domain.NewInvalidInputError("missing resume quiz request")
	}

	if err := h.resume.InvalidateResumeQuiz(c.UserContext(), req.TechnicalSkills, req.ExperienceYears, req.Filename); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetCredentials godoc
// @Summary Credential pool state
// @Description Returns per-credential state and counters. Values are never exposed.
// @Tags ops
// @Produce json
// @Success 200 {object} dto.CredentialsResponse
// @Router /credentials [get]
func (h *QuizHandler) GetCredentials(c *fiber.Ctx) error {
	snapshot := h.credentials.Snapshot()
	resp := dto.CredentialsResponse{Credentials: make([]dto.CredentialStatusResponse, 0, len(snapshot))}
	for _, s := range snapshot {
		resp.Credentials = append(resp.Credentials, dto.CredentialStatusResponse{
			Index:        s.Index,
			Label:        s.Label,
			State:        s.State,
			Attempts:     s.Attempts,
			Successes:    s.Successes,
			Failures:     s.Failures,
			LastCategory: s.LastCategory,
		})
	}
	return c.JSON(resp)
}

// Health reports liveness plus the state of optional dependencies
func (h *QuizHandler) Health(c *fiber.Ctx) error {
	resp := dto.HealthResponse{
		Status:      "ok",
		Credentials: h.credentials.Len(),
		Cache:       "disabled",
	}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			logger.Get().Warn("Cache health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Cache = "unavailable"
		} else {
			resp.Cache = "ok"
		}
	}

	return c.JSON(resp)
}
