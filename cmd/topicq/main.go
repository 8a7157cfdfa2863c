package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "topicq",
		Short:         "Generate multiple-choice quizzes with Gemini",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("api-url", "", "Gemini generateContent endpoint (or set GEMINI_API_URL)")
	pf.Int("max-retries", 0, "Attempts per credential")
	pf.Bool("no-cache", false, "Do not connect to Redis")

	root.AddCommand(generateCmd(), batchCmd(), resumeCmd(), probeCmd())
	return root
}
