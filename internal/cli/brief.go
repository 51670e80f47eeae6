package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/repository"
	"github.com/agentic-news/reaper/internal/summary"
)

func newBriefCmd() *cobra.Command {
	var week string
	var output string

	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Generate a weekly founder brief",
		Long: `Aggregate all ambiguity flags, pattern instances, and override
decisions from the week into a concise summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateBrief(cmd, week, output)
		},
	}

	cmd.Flags().StringVar(&week, "week", "",
		"week to generate the brief for (YYYY-MM-DD, default: current week)")
	cmd.Flags().StringVar(&output, "output", "",
		"output file path (default: stdout)")

	return cmd
}

func generateBrief(cmd *cobra.Command, week, output string) error {
	cfg := domain.FromEnv()

	at := time.Now().UTC()
	if week != "" {
		parsed, err := time.Parse("2006-01-02", week)
		if err != nil {
			return fmt.Errorf("invalid week %q, expected YYYY-MM-DD", week)
		}
		at = parsed
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	gen := summary.NewGenerator(repo)

	s, err := gen.Load(cmd.Context(), at)
	if errors.Is(err, repository.ErrNotFound) {
		s, err = gen.Generate(cmd.Context(), at)
	}
	if err != nil {
		return fmt.Errorf("failed to build brief: %w", err)
	}

	text := summary.Render(s)
	if output == "" {
		fmt.Print(text)
		return nil
	}

	if err := os.WriteFile(output, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write brief: %w", err)
	}
	fmt.Printf("Brief written to %s\n", output)
	return nil
}
