package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"topicq/internal/bootstrap"
	"topicq/internal/config"
	"topicq/internal/domain"
	"topicq/internal/logger"
	"topicq/internal/validation"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"log-level":   "logger.level",
	"api-url":     "gemini.api_url",
	"max-retries": "gemini.max_retries",
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a quiz about a topic",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("topic", "t", "", "Quiz topic (required)")
	f.StringP("difficulty", "d", "medium", "Difficulty (easy, medium, hard)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Compose one quiz from several topics",
		RunE:  runBatch,
	}
	f := cmd.Flags()
	f.StringSliceP("topic", "t", nil, "Topic, one sub-prompt each (repeatable, required)")
	f.StringP("difficulty", "d", "medium", "Difficulty (easy, medium, hard)")
	f.String("title", "", "Quiz title (defaults to the joined topics)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Generate interview questions from resume skills",
		RunE:  runResume,
	}
	f := cmd.Flags()
	f.StringSliceP("skill", "s", nil, "Technical skill (repeatable)")
	f.IntP("years", "y", 0, "Years of experience")
	f.StringP("filename", "f", "", "Resume file name (required)")
	_ = cmd.MarkFlagRequired("filename")
	return cmd
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check every configured credential against the upstream",
		RunE:  runProbe,
	}
}

// setup loads configuration with flag overrides and builds the application.
func setup(cmd *cobra.Command) (*bootstrap.App, error) {
	v, err := config.New()
	if err != nil {
		return nil, err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg, err := config.FromViper(v, os.Environ())
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		return nil, err
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	return bootstrap.New(cfg, bootstrap.Options{SkipCache: noCache}, logger.Get())
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	difficulty, _ := cmd.Flags().GetString("difficulty")
	if errs := validation.NewValidator().ValidateGenerateQuizRequest(topic, difficulty); len(errs) > 0 {
		return errs
	}

	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	defer logger.Sync()

	doc, err := app.Generation.GenerateQuiz(cmd.Context(), topic, difficulty)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), doc)
}

// batchOutput is printed by the batch command
type batchOutput struct {
	*domain.QuizDocument
	Requested     int   `json:"requested_questions"`
	FailedPrompts []int `json:"failed_prompts,omitempty"`
	Degraded      bool  `json:"degraded"`
}

func runBatch(cmd *cobra.Command, _ []string) error {
	topics, _ := cmd.Flags().GetStringSlice("topic")
	rawDifficulty, _ := cmd.Flags().GetString("difficulty")
	title, _ := cmd.Flags().GetString("title")

	difficulty, err := domain.ParseDifficulty(rawDifficulty)
	if err != nil {
		return err
	}
	if title == "" {
		title = "Quiz: " + strings.Join(topics, ", ")
	}

	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	defer logger.Sync()

	specs := make([]domain.PromptSpec, 0, len(topics))
	for _, topic := range topics {
		spec, err := domain.NewPromptSpec(topic, difficulty, app.Counts.For(difficulty))
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	result, err := app.Composer.Compose(cmd.Context(), title, difficulty, specs)
	if result == nil || len(result.Document.Questions) == 0 {
		return err
	}
	if result.Err != nil {
		logger.Get().Warn("Some sub-prompts failed", zap.Ints("failed_prompts", result.FailedPrompts), zap.Error(result.Err))
	}
	if werr := writeJSON(cmd.OutOrStdout(), batchOutput{
		QuizDocument:  result.Document,
		Requested:     result.Requested,
		FailedPrompts: result.FailedPrompts,
		Degraded:      result.Degraded(),
	}); werr != nil {
		return werr
	}
	return err
}

func runResume(cmd *cobra.Command, _ []string) error {
	skills, _ := cmd.Flags().GetStringSlice("skill")
	years, _ := cmd.Flags().GetInt("years")
	filename, _ := cmd.Flags().GetString("filename")
	if errs := validation.NewValidator().ValidateResumeQuizRequest(skills, years, filename); len(errs) > 0 {
		return errs
	}

	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	defer logger.Sync()

	quiz, err := app.Resume.GenerateResumeQuiz(cmd.Context(), skills, years, filename)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), quiz)
}

func runProbe(cmd *cobra.Command, _ []string) error {
	if err := cmd.Flags().Set("no-cache", "true"); err != nil {
		return err
	}
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	defer logger.Sync()

	usable := 0
	for _, cred := range app.Pool.List() {
		err := app.Client.Probe(cmd.Context(), cred)
		app.Pool.Mark(cred, probeOutcome(err))
		if err != nil {
			logger.Get().Warn("Credential probe failed", zap.Stringer("credential", cred), zap.Error(err))
			continue
		}
		usable++
	}

	if err := writeJSON(cmd.OutOrStdout(), app.Pool.Snapshot()); err != nil {
		return err
	}
	if usable == 0 {
		return fmt.Errorf("no usable credentials out of %d", app.Pool.Len())
	}
	return nil
}

// probeOutcome converts a probe error into the outcome recorded by the pool.
func probeOutcome(err error) domain.CallOutcome {
	if err == nil {
		return domain.SuccessOutcome(nil)
	}
	upErr, ok := err.(*domain.UpstreamError)
	if !ok {
		upErr = &domain.UpstreamError{Category: domain.CategoryUnknown, Err: err}
	}
	if upErr.Category == domain.CategoryForbidden {
		return domain.TerminalOutcome(upErr)
	}
	return domain.TransientOutcome(upErr)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
