package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"topicq/internal/domain"
)

// ResumePolicy controls how resume data is turned into prompts.
type ResumePolicy struct {
	HardMinYears       int
	MediumMinYears     int
	DefaultDifficulty  domain.Difficulty
	MaxPrimarySkills   int
	QuestionsPerPrompt int
	TargetQuestions    int
}

// DefaultResumePolicy: 3+ years is hard, 1+ is medium, otherwise medium.
var DefaultResumePolicy = ResumePolicy{
	HardMinYears:       3,
	MediumMinYears:     1,
	DefaultDifficulty:  domain.DifficultyMedium,
	MaxPrimarySkills:   5,
	QuestionsPerPrompt: 10,
	TargetQuestions:    30,
}

// DifficultyFor maps years of experience onto a difficulty.
func (p ResumePolicy) DifficultyFor(years int) domain.Difficulty {
	switch {
	case years >= p.HardMinYears:
		return domain.DifficultyHard
	case years >= p.MediumMinYears:
		return domain.DifficultyMedium
	default:
		return p.DefaultDifficulty
	}
}

func (p ResumePolicy) withDefaults() ResumePolicy {
	d := DefaultResumePolicy
	if p.HardMinYears <= 0 {
		p.HardMinYears = d.HardMinYears
	}
	if p.MediumMinYears < 0 {
		p.MediumMinYears = d.MediumMinYears
	}
	if _, err := domain.ParseDifficulty(string(p.DefaultDifficulty)); err != nil {
		p.DefaultDifficulty = d.DefaultDifficulty
	}
	if p.MaxPrimarySkills <= 0 {
		p.MaxPrimarySkills = d.MaxPrimarySkills
	}
	if p.QuestionsPerPrompt <= 0 {
		p.QuestionsPerPrompt = d.QuestionsPerPrompt
	}
	if p.TargetQuestions <= 0 {
		p.TargetQuestions = d.TargetQuestions
	}
	return p
}

// maxFlightJoins bounds how often a caller starts over after a shared
// generation was canceled under it.
const maxFlightJoins = 3

// ResumeQuizService composes a long quiz from skills extracted from a resume.
type ResumeQuizService struct {
	composer  *BatchComposer
	generator domain.QuizGenerator
	cache     ResumeQuizCache
	policy    ResumePolicy
	sfGroup   singleflight.Group
	logger    *zap.Logger
}

// NewResumeQuizService creates a new instance of ResumeQuizService. A nil cache disables caching.
func NewResumeQuizService(
	generator domain.QuizGenerator,
	cache ResumeQuizCache,
	policy ResumePolicy,
	logger *zap.Logger,
) *ResumeQuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = noopResumeQuizCache{}
	}
	return &ResumeQuizService{
		composer:  NewBatchComposer(generator, logger),
		generator: generator,
		cache:     cache,
		policy:    policy.withDefaults(),
		logger:    logger,
	}
}

// GenerateResumeQuiz returns a cached quiz when one exists; otherwise it
// generates one, sharing the work between concurrent identical requests.
func (s *ResumeQuizService) GenerateResumeQuiz(ctx context.Context, skills []string, experienceYears int, filename string) (*domain.ResumeQuiz, error) {
	skills = normalizeSkills(skills)
	filename = strings.TrimSpace(filename)
	key := ResumeQuizCacheKey(filename, skills, experienceYears)

	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		s.logger.Info("Resume quiz served from cache", zap.String("key", key))
		return cached, nil
	}
	if !errors.Is(err, ErrResumeQuizNotCached) {
		s.logger.Warn("Failed to read resume quiz cache", zap.String("key", key), zap.Error(err))
	}

	for attempt := 1; ; attempt++ {
		ch := s.sfGroup.DoChan(key, func() (interface{}, error) {
			return s.generate(ctx, skills, experienceYears, filename, key)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, domain.NewCanceledError(ctx.Err())
		case res = <-ch:
		}

		if res.Err != nil {
			// Canceled under another caller's ctx; restart on ours.
			if res.Shared && domain.IsCode(res.Err, domain.CodeCanceled) && ctx.Err() == nil && attempt < maxFlightJoins {
				s.logger.Info("Shared resume quiz generation was canceled by its leader, retrying",
					zap.String("key", key),
					zap.Int("attempt", attempt),
				)
				continue
			}
			return nil, res.Err
		}
		quiz, ok := res.Val.(*domain.ResumeQuiz)
		if !ok {
			return nil, domain.NewInternalError(fmt.Sprintf("unexpected type from singleflight: %T", res.Val), nil)
		}
		if res.Shared {
			return cloneResumeQuiz(quiz), nil
		}
		return quiz, nil
	}
}

// InvalidateResumeQuiz drops the cached quiz for the given inputs so the next
// request generates a fresh one.
func (s *ResumeQuizService) InvalidateResumeQuiz(ctx context.Context, skills []string, experienceYears int, filename string) error {
	key := ResumeQuizCacheKey(strings.TrimSpace(filename), normalizeSkills(skills), experienceYears)
	if err := s.cache.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info("Resume quiz cache entry invalidated", zap.String("key", key))
	return nil
}

func (s *ResumeQuizService) generate(ctx context.Context, skills []string, years int, filename, key string) (*domain.ResumeQuiz, error) {
	target := s.policy.TargetQuestions
	primary := skills
	if len(primary) > s.policy.MaxPrimarySkills {
		primary = primary[:s.policy.MaxPrimarySkills]
	}

	var (
		title      string
		difficulty domain.Difficulty
		specs      []domain.PromptSpec
		topics     []string
	)
	if len(primary) > 0 {
		topics = append([]string{}, skills...)
		title = "Resume-Based Assessment: " + filename
		difficulty = s.policy.DifficultyFor(years)
		skillsText := strings.Join(primary, ", ")
		for _, tmpl := range resumeInstructionTemplates {
			specs = append(specs, domain.PromptSpec{
				Instruction:   fmt.Sprintf(tmpl, skillsText),
				Difficulty:    difficulty,
				QuestionCount: s.policy.QuestionsPerPrompt,
			})
		}
	} else {
		title = "Professional Skills Assessment: " + filename
		difficulty = domain.DifficultyHard
		topics = append([]string{}, fallbackTopics...)
		for _, topic := range fallbackTopics {
			specs = append(specs, domain.PromptSpec{
				Instruction:   topic,
				Difficulty:    difficulty,
				QuestionCount: s.policy.QuestionsPerPrompt,
			})
		}
	}

	s.logger.Info("Generating resume quiz",
		zap.String("filename", filename),
		zap.Strings("primary_skills", primary),
		zap.Int("experience_years", years),
		zap.String("difficulty", string(difficulty)),
	)

	result, composeErr := s.composer.Compose(ctx, title, difficulty, specs)
	if composeErr != nil {
		if result == nil || domain.IsCode(composeErr, domain.CodeCanceled) {
			return nil, composeErr
		}
		s.logger.Warn("Every resume sub-prompt failed, trying a top-up", zap.Error(composeErr))
	}
	doc := result.Document

	if missing := target - len(doc.Questions); missing > 0 {
		questions, err := s.topUp(ctx, primary, missing)
		if err != nil {
			if domain.IsCode(err, domain.CodeCanceled) {
				return nil, err
			}
			s.logger.Warn("Top-up generation failed, returning a short quiz",
				zap.Int("missing", missing),
				zap.Error(err),
			)
		}
		if len(questions) > missing {
			questions = questions[:missing]
		}
		doc.Questions = append(doc.Questions, questions...)
	}
	if len(doc.Questions) == 0 && composeErr != nil {
		return nil, composeErr
	}
	if len(doc.Questions) > target {
		doc.Questions = doc.Questions[:target]
	}

	quiz := &domain.ResumeQuiz{
		QuizDocument:       *doc,
		ResumeFilename:     filename,
		TotalQuestions:     len(doc.Questions),
		RequestedQuestions: target,
		ExtractedTopics:    topics,
		ExperienceLevel:    years,
		Degraded:           len(doc.Questions) < target,
	}

	if quiz.Degraded {
		s.logger.Warn("Resume quiz is short of the target",
			zap.Int("questions", quiz.TotalQuestions),
			zap.Int("target", target),
		)
		return quiz, nil
	}
	if err := s.cache.Put(ctx, key, quiz); err != nil {
		s.logger.Warn("Failed to cache resume quiz", zap.String("key", key), zap.Error(err))
	}
	return quiz, nil
}

// topUp asks once for the missing number of questions.
func (s *ResumeQuizService) topUp(ctx context.Context, primary []string, missing int) ([]domain.Question, error) {
	subject := fallbackTopics[0]
	if len(primary) > 0 {
		n := len(primary)
		if n > 3 {
			n = 3
		}
		subject = strings.Join(primary[:n], ", ")
	}

	s.logger.Info("Topping up resume quiz", zap.Int("missing", missing))
	doc, err := s.generator.Generate(ctx, domain.PromptSpec{
		Instruction:   fmt.Sprintf(topUpInstructionTemplate, subject),
		Difficulty:    domain.DifficultyMedium,
		QuestionCount: missing,
	})
	if err != nil {
		return nil, err
	}
	return doc.Questions, nil
}

// normalizeSkills trims, drops blanks and removes case-insensitive duplicates,
// keeping first-seen order.
func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneResumeQuiz(q *domain.ResumeQuiz) *domain.ResumeQuiz {
	out := *q
	out.QuizDocument = *q.QuizDocument.Clone()
	out.ExtractedTopics = append([]string{}, q.ExtractedTopics...)
	return &out
}
