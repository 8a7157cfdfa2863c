package service

import (
	"context"

	"go.uber.org/zap"

	"topicq/internal/domain"
	"topicq/internal/util"
)

// QuestionCounts is the number of questions requested per difficulty.
type QuestionCounts struct {
	Easy   int
	Medium int
	Hard   int
}

// DefaultQuestionCounts mirrors the ranges the model is asked for.
var DefaultQuestionCounts = QuestionCounts{Easy: 4, Medium: 6, Hard: 8}

func (c QuestionCounts) For(d domain.Difficulty) int {
	switch d {
	case domain.DifficultyEasy:
		return c.Easy
	case domain.DifficultyHard:
		return c.Hard
	default:
		return c.Medium
	}
}

// GenerationService walks the credential pool in configured order until one
// call yields a valid quiz.
type GenerationService struct {
	pool       domain.CredentialPool
	caller     domain.QuizCaller
	randomizer *AnswerRandomizer
	counts     QuestionCounts
	logger     *zap.Logger
}

// NewGenerationService creates a new instance of GenerationService.
func NewGenerationService(
	pool domain.CredentialPool,
	caller domain.QuizCaller,
	randomizer *AnswerRandomizer,
	counts QuestionCounts,
	logger *zap.Logger,
) *GenerationService {
	if randomizer == nil {
		randomizer = NewAnswerRandomizer()
	}
	if counts.Easy <= 0 {
		counts.Easy = DefaultQuestionCounts.Easy
	}
	if counts.Medium <= 0 {
		counts.Medium = DefaultQuestionCounts.Medium
	}
	if counts.Hard <= 0 {
		counts.Hard = DefaultQuestionCounts.Hard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		pool:       pool,
		caller:     caller,
		randomizer: randomizer,
		counts:     counts,
		logger:     logger,
	}
}

// GenerateQuiz builds a prompt spec for topic and difficulty and generates it.
func (s *GenerationService) GenerateQuiz(ctx context.Context, topic, difficulty string) (*domain.QuizDocument, error) {
	d, err := domain.ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	spec, err := domain.NewPromptSpec(topic, d, s.counts.For(d))
	if err != nil {
		return nil, err
	}
	return s.Generate(ctx, spec)
}

// Generate tries every credential once, in order. Each outcome is recorded in
// the pool. When every credential fails the error carries the category of the
// last failure.
func (s *GenerationService) Generate(ctx context.Context, spec domain.PromptSpec) (*domain.QuizDocument, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String("request_id", util.NewULID()),
		zap.String("difficulty", string(spec.Difficulty)),
		zap.Int("requested_questions", spec.QuestionCount),
	)
	log.Info("Starting quiz generation", zap.String("topic", spec.Instruction))

	prompt := buildPrompt(spec)
	var last *domain.UpstreamError
	attempts := 0

	for _, cred := range s.pool.List() {
		if err := ctx.Err(); err != nil {
			log.Info("Quiz generation canceled", zap.Int("attempts", attempts))
			return nil, domain.NewCanceledError(err)
		}

		attempts++
		outcome := s.caller.Call(ctx, cred, prompt)
		s.pool.Mark(cred, outcome)

		if outcome.Kind == domain.OutcomeSuccess && outcome.Document != nil {
			doc := s.finalize(spec, outcome.Document, log)
			log.Info("Quiz generated",
				zap.String("credential", cred.Label()),
				zap.Int("attempts", attempts),
				zap.Int("questions", len(doc.Questions)),
			)
			return doc, nil
		}

		if outcome.Category() == domain.CategoryCanceled || ctx.Err() != nil {
			log.Info("Quiz generation canceled", zap.Int("attempts", attempts))
			cause := ctx.Err()
			if cause == nil && outcome.Err != nil {
				cause = outcome.Err
			}
			return nil, domain.NewCanceledError(cause)
		}

		if outcome.Err != nil {
			last = outcome.Err
		} else {
			last = &domain.UpstreamError{Category: domain.CategoryMalformed, Message: "empty document"}
		}
		log.Warn("Credential failed, rotating",
			zap.String("credential", cred.Label()),
			zap.String("outcome", outcome.Kind.String()),
			zap.String("category", string(last.Category)),
			zap.Int("status", last.StatusCode),
		)
	}

	err := domain.NewAllCredentialsExhaustedError(last, attempts)
	log.Error("All credentials exhausted",
		zap.Int("attempts", attempts),
		zap.String("last_category", string(domain.LastFailureCategory(err))),
	)
	return nil, err
}

// finalize fills defaults from spec, truncates extra questions and shuffles options.
func (s *GenerationService) finalize(spec domain.PromptSpec, doc *domain.QuizDocument, log *zap.Logger) *domain.QuizDocument {
	out := s.randomizer.Randomize(doc)
	if out.Title == "" {
		out.Title = "Quiz: " + spec.Instruction
	}
	if out.Difficulty == "" {
		out.Difficulty = string(spec.Difficulty)
	}
	switch n := len(out.Questions); {
	case n > spec.QuestionCount:
		log.Debug("Truncating extra questions", zap.Int("returned", n))
		out.Questions = out.Questions[:spec.QuestionCount]
	case n < spec.QuestionCount:
		log.Warn("Model returned fewer questions than requested", zap.Int("returned", n))
	}
	return out
}

var _ domain.QuizGenerator = (*GenerationService)(nil)
