package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"topicq/internal/cache"
	"topicq/internal/domain"
	"topicq/internal/logger"
)

// ErrResumeQuizNotCached is returned when no complete quiz is cached for a request.
var ErrResumeQuizNotCached = errors.New("resume quiz not found in cache")

// ResumeQuizCache stores complete resume quizzes keyed by their inputs.
type ResumeQuizCache interface {
	Put(ctx context.Context, key string, quiz *domain.ResumeQuiz) error
	Get(ctx context.Context, key string) (*domain.ResumeQuiz, error)
	Delete(ctx context.Context, key string) error
}

type resumeQuizCacheImpl struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewResumeQuizCache wraps a generic cache. A nil cache yields a no-op implementation.
func NewResumeQuizCache(c domain.Cache, ttl time.Duration) ResumeQuizCache {
	if c == nil {
		logger.Get().Warn("ResumeQuizCache initialized with nil cache. Caching is disabled.")
		return &noopResumeQuizCache{}
	}
	return &resumeQuizCacheImpl{cache: c, ttl: ttl}
}

// ResumeQuizCacheKey derives the cache key from the request inputs. Skills must
// already be normalized.
func ResumeQuizCacheKey(filename string, skills []string, experienceYears int) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(filename)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.Join(skills, ","))))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(experienceYears)))
	return cache.GenerateCacheKey("resume", "quiz", hex.EncodeToString(h.Sum(nil)))
}

func (s *resumeQuizCacheImpl) Put(ctx context.Context, key string, quiz *domain.ResumeQuiz) error {
	if quiz == nil {
		return domain.NewInvalidInputError("cannot cache nil resume quiz")
	}

	dataBytes, err := json.Marshal(quiz)
	if err != nil {
		return domain.NewInternalError("failed to marshal resume quiz for caching", err)
	}

	if err := s.cache.Set(ctx, key, string(dataBytes), s.ttl); err != nil {
		return domain.NewInternalError(fmt.Sprintf("failed to set resume quiz to cache for key %s", key), err)
	}
	logger.Get().Debug("Cached resume quiz", zap.String("key", key), zap.Duration("ttl", s.ttl))
	return nil
}

func (s *resumeQuizCacheImpl) Get(ctx context.Context, key string) (*domain.ResumeQuiz, error) {
	dataString, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, ErrResumeQuizNotCached
		}
		return nil, domain.NewInternalError(fmt.Sprintf("failed to get resume quiz from cache for key %s", key), err)
	}
	if dataString == "" {
		return nil, ErrResumeQuizNotCached
	}

	var quiz domain.ResumeQuiz
	if err := json.Unmarshal([]byte(dataString), &quiz); err != nil {
		return nil, domain.NewInternalError(fmt.Sprintf("failed to unmarshal resume quiz from cache for key %s", key), err)
	}
	return &quiz, nil
}

func (s *resumeQuizCacheImpl) Delete(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, key); err != nil {
		return domain.NewInternalError(fmt.Sprintf("failed to delete resume quiz from cache for key %s", key), err)
	}
	return nil
}

type noopResumeQuizCache struct{}

func (noopResumeQuizCache) Put(ctx context.Context, key string, quiz *domain.ResumeQuiz) error {
	return nil
}

func (noopResumeQuizCache) Get(ctx context.Context, key string) (*domain.ResumeQuiz, error) {
	return nil, ErrResumeQuizNotCached
}

func (noopResumeQuizCache) Delete(ctx context.Context, key string) error {
	return nil
}
