// Package bootstrap wires configuration into the runtime object graph shared
// by the API server and the CLI.
package bootstrap

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"topicq/internal/adapter"
	"topicq/internal/adapter/quizgen"
	"topicq/internal/cache"
	"topicq/internal/config"
	"topicq/internal/credential"
	"topicq/internal/domain"
	"topicq/internal/service"
)

// App holds the long-lived components of one process.
type App struct {
	Config     *config.Config
	Pool       *credential.Pool
	Client     *quizgen.GeminiClient
	Generation *service.GenerationService
	Composer   *service.BatchComposer
	Resume     *service.ResumeQuizService
	Counts     service.QuestionCounts
	// Cache is nil when Redis is not configured.
	Cache domain.Cache

	redisClient *redis.Client
	logger      *zap.Logger
}

// Options tweaks construction for callers that do not need every component.
type Options struct {
	// SkipCache leaves Redis disconnected even when an address is configured.
	SkipCache bool
	// HTTPClient overrides the upstream HTTP client.
	HTTPClient *http.Client
}

// New builds the application from cfg.
func New(cfg *config.Config, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := credential.NewPool(cfg.Gemini.APIKeys, logger.Named("credentials"))
	if err != nil {
		return nil, err
	}

	client, err := quizgen.NewGeminiClient(quizgen.Options{
		Endpoint:        cfg.Gemini.APIURL,
		MaxRetries:      cfg.Gemini.MaxRetries,
		AttemptTimeouts: cfg.Gemini.AttemptTimeouts,
		BackoffBase:     cfg.Gemini.BackoffBase,
		ShortBackoff:    cfg.Gemini.ShortBackoff,
	}, opts.HTTPClient, logger.Named("gemini"))
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Pool:   pool,
		Client: client,
		logger: logger,
	}

	if cfg.Redis.Address != "" && !opts.SkipCache {
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn("Redis unavailable, resume quiz caching disabled",
				zap.String("address", cfg.Redis.Address), zap.Error(err))
		} else {
			logger.Info("Successfully connected to Redis", zap.String("address", cfg.Redis.Address))
			app.redisClient = redisClient
			app.Cache = adapter.NewRedisCacheAdapter(redisClient)
		}
	}

	app.Counts = service.QuestionCounts{
		Easy:   cfg.Quiz.EasyCount,
		Medium: cfg.Quiz.MediumCount,
		Hard:   cfg.Quiz.HardCount,
	}
	app.Generation = service.NewGenerationService(
		pool,
		client,
		service.NewAnswerRandomizer(),
		app.Counts,
		logger.Named("generation"),
	)
	app.Composer = service.NewBatchComposer(app.Generation, logger.Named("composer"))

	app.Resume = service.NewResumeQuizService(
		app.Generation,
		service.NewResumeQuizCache(app.Cache, cfg.Cache.ResumeQuizTTL),
		ResumePolicyFromConfig(cfg.Resume),
		logger.Named("resume"),
	)

	logger.Info("Application initialized",
		zap.Int("credentials", pool.Len()),
		zap.Bool("cache_enabled", app.Cache != nil),
	)
	return app, nil
}

// ResumePolicyFromConfig converts the resume section of the config.
func ResumePolicyFromConfig(rc config.ResumeConfig) service.ResumePolicy {
	policy := service.DefaultResumePolicy
	policy.HardMinYears = rc.HardMinYears
	policy.MediumMinYears = rc.MediumMinYears
	if d, err := domain.ParseDifficulty(rc.DefaultDifficulty); err == nil {
		policy.DefaultDifficulty = d
	}
	if rc.QuestionsPerPrompt > 0 {
		policy.QuestionsPerPrompt = rc.QuestionsPerPrompt
	}
	if rc.TargetQuestions > 0 {
		policy.TargetQuestions = rc.TargetQuestions
	}
	return policy
}

// Close releases external connections.
func (a *App) Close() error {
	var err error
	if a.redisClient != nil {
		err = multierr.Append(err, a.redisClient.Close())
	}
	return err
}
