package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"topicq/internal/domain"
)

// ComposeResult is the outcome of a batch composition. Document is always set;
// it may hold fewer questions than Requested.
type ComposeResult struct {
	Document  *domain.QuizDocument
	Requested int
	// FailedPrompts holds the 0-based positions of sub-prompts that produced nothing.
	FailedPrompts []int
	// Err aggregates every sub-prompt failure.
	Err error
}

// Degraded reports whether the composed document is short of the requested count.
func (r *ComposeResult) Degraded() bool {
	return len(r.Document.Questions) < r.Requested
}

// BatchComposer runs several prompt specs one after another and concatenates
// their questions in prompt order.
type BatchComposer struct {
	generator domain.QuizGenerator
	logger    *zap.Logger
}

// NewBatchComposer creates a new instance of BatchComposer.
func NewBatchComposer(generator domain.QuizGenerator, logger *zap.Logger) *BatchComposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchComposer{generator: generator, logger: logger}
}

// Compose generates every spec sequentially. A failed sub-prompt contributes
// zero questions and composition continues. An error is returned only when
// every sub-prompt failed (the last failure) or when ctx is canceled (together
// with the partial result).
func (b *BatchComposer) Compose(ctx context.Context, title string, difficulty domain.Difficulty, specs []domain.PromptSpec) (*ComposeResult, error) {
	if len(specs) == 0 {
		return nil, domain.NewInvalidInputError("at least one prompt is required")
	}
	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, domain.NewError(domain.CodeInvalidInput, fmt.Sprintf("prompt %d is invalid", i+1), err)
		}
	}

	start := time.Now()
	result := &ComposeResult{
		Document: &domain.QuizDocument{
			Title:      title,
			Difficulty: string(difficulty),
			Questions:  []domain.Question{},
		},
	}
	for _, spec := range specs {
		result.Requested += spec.QuestionCount
	}
	b.logger.Info("Starting batch composition",
		zap.String("title", title),
		zap.Int("prompts", len(specs)),
		zap.Int("requested_questions", result.Requested),
	)

	var lastErr error
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			b.logger.Info("Batch composition canceled", zap.Int("completed_prompts", i))
			return result, domain.NewCanceledError(err)
		}

		doc, err := b.generator.Generate(ctx, spec)
		if err != nil {
			if domain.IsCode(err, domain.CodeCanceled) {
				b.logger.Info("Batch composition canceled", zap.Int("completed_prompts", i))
				return result, err
			}
			b.logger.Error("Sub-prompt failed, continuing",
				zap.Int("prompt", i+1),
				zap.Error(err),
			)
			result.Err = multierr.Append(result.Err, fmt.Errorf("prompt %d: %w", i+1, err))
			result.FailedPrompts = append(result.FailedPrompts, i)
			lastErr = err
			continue
		}

		b.logger.Info("Sub-prompt succeeded",
			zap.Int("prompt", i+1),
			zap.Int("questions", len(doc.Questions)),
		)
		result.Document.Questions = append(result.Document.Questions, doc.Questions...)
	}

	b.logger.Info("Batch composition finished",
		zap.Int("questions", len(result.Document.Questions)),
		zap.Int("failed_prompts", len(result.FailedPrompts)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if len(result.FailedPrompts) == len(specs) {
		return result, lastErr
	}
	return result, nil
}
