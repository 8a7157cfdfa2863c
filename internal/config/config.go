package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Logger LoggerConfig
	Gemini GeminiConfig
	Redis  RedisConfig
	Cache  CacheConfig
	Quiz   QuizConfig
	Resume ResumeConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// RequestTimeout bounds the work done for one API request.
	RequestTimeout time.Duration
}

type LoggerConfig struct {
	Level string
	Env   string
}

type GeminiConfig struct {
	// APIKeys is the ordered credential list.
	APIKeys         []string
	APIURL          string
	MaxRetries      int
	AttemptTimeouts []time.Duration
	BackoffBase     time.Duration
	ShortBackoff    time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	ResumeQuizTTL time.Duration
}

type QuizConfig struct {
	EasyCount   int
	MediumCount int
	HardCount   int
}

type ResumeConfig struct {
	HardMinYears       int
	MediumMinYears     int
	DefaultDifficulty  string
	QuestionsPerPrompt int
	TargetQuestions    int
}

var numberedKeyPattern = regexp.MustCompile(`^GEMINI_API_KEY_(\d+)$`)

// New returns a viper instance with defaults, config file search paths and
// environment binding applied. The config file is optional.
func New() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if os.Getenv("ENV") == "test" {
		v.AddConfigPath("../../config")
		v.AddConfigPath("../../")
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini.api_url", "GEMINI_API_URL")
	_ = v.BindEnv("logger.env", "ENV")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if configFile := v.ConfigFileUsed(); configFile != "" {
		absPath, _ := filepath.Abs(configFile)
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", absPath)
	}
	return v, nil
}

// LoadConfig reads configuration from the optional config file and the process environment.
func LoadConfig() (*Config, error) {
	v, err := New()
	if err != nil {
		return nil, err
	}
	return FromViper(v, os.Environ())
}

// FromViper builds a Config. environ is consulted for numbered credentials
// (GEMINI_API_KEY_1..N), which take precedence over gemini.api_keys and GEMINI_API_KEY.
func FromViper(v *viper.Viper, environ []string) (*Config, error) {
	timeouts, err := parseDurations(v.GetString("gemini.attempt_timeouts"))
	if err != nil {
		return nil, fmt.Errorf("invalid gemini.attempt_timeouts: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Logger: LoggerConfig{
			Level: v.GetString("logger.level"),
			Env:   v.GetString("logger.env"),
		},
		Gemini: GeminiConfig{
			APIKeys:         credentialsFrom(v, environ),
			APIURL:          v.GetString("gemini.api_url"),
			MaxRetries:      v.GetInt("gemini.max_retries"),
			AttemptTimeouts: timeouts,
			BackoffBase:     v.GetDuration("gemini.backoff_base"),
			ShortBackoff:    v.GetDuration("gemini.short_backoff"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			ResumeQuizTTL: v.GetDuration("cache.resume_quiz_ttl"),
		},
		Quiz: QuizConfig{
			EasyCount:   v.GetInt("quiz.easy_count"),
			MediumCount: v.GetInt("quiz.medium_count"),
			HardCount:   v.GetInt("quiz.hard_count"),
		},
		Resume: ResumeConfig{
			HardMinYears:       v.GetInt("resume.hard_min_years"),
			MediumMinYears:     v.GetInt("resume.medium_min_years"),
			DefaultDifficulty:  v.GetString("resume.default_difficulty"),
			QuestionsPerPrompt: v.GetInt("resume.questions_per_prompt"),
			TargetQuestions:    v.GetInt("resume.target_questions"),
		},
	}

	if cfg.Gemini.MaxRetries <= 0 {
		return nil, fmt.Errorf("gemini.max_retries must be positive, got %d", cfg.Gemini.MaxRetries)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.request_timeout", "170s")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.env", "development")

	v.SetDefault("gemini.api_url", "")
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.attempt_timeouts", "30s,45s,60s")
	v.SetDefault("gemini.backoff_base", "1s")
	v.SetDefault("gemini.short_backoff", "500ms")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.resume_quiz_ttl", "24h")

	v.SetDefault("quiz.easy_count", 4)
	v.SetDefault("quiz.medium_count", 6)
	v.SetDefault("quiz.hard_count", 8)

	v.SetDefault("resume.hard_min_years", 3)
	v.SetDefault("resume.medium_min_years", 1)
	v.SetDefault("resume.default_difficulty", "medium")
	v.SetDefault("resume.questions_per_prompt", 10)
	v.SetDefault("resume.target_questions", 30)
}

// credentialsFrom resolves the ordered credential list. Numbered variables are
// ordered by their numeric suffix, so GEMINI_API_KEY_10 follows GEMINI_API_KEY_9.
func credentialsFrom(v *viper.Viper, environ []string) []string {
	type numbered struct {
		n     int
		value string
	}
	var found []numbered
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := numberedKeyPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || strings.TrimSpace(value) == "" {
			continue
		}
		found = append(found, numbered{n: n, value: value})
	}
	if len(found) > 0 {
		sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
		keys := make([]string, len(found))
		for i, f := range found {
			keys[i] = f.value
		}
		return keys
	}

	if keys := v.GetStringSlice("gemini.api_keys"); len(keys) > 0 {
		return keys
	}
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok && name == "GEMINI_API_KEY" && strings.TrimSpace(value) != "" {
			return []string{value}
		}
	}
	return nil
}

func parseDurations(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration %s must be positive", part)
		}
		out = append(out, d)
	}
	return out, nil
}
