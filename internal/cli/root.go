// Package cli implements the reaper command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-news/reaper/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var debug bool

// NewRootCmd builds the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reaper",
		Short: "Deterministic scoring pipeline for social-news stories",
		Long: `Reaper fetches top Hacker News stories and runs each one through a
deterministic scoring pipeline: ambiguity detection, pattern matching,
risk composition, and the human-override decision.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := domain.FromEnv()
			configureLogging(cfg.Logging, debug)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newBriefCmd(),
		newInitCmd(),
		newSchemaCmd(),
		newVersionCmd(),
	)

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func configureLogging(cfg domain.LoggingConfig, debug bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
