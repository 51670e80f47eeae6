package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-news/reaper/internal/bus"
	"github.com/agentic-news/reaper/internal/cache"
	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/hn"
	"github.com/agentic-news/reaper/internal/pipeline"
	"github.com/agentic-news/reaper/internal/repository"
	"github.com/agentic-news/reaper/internal/sandbox"
)

func newRunCmd() *cobra.Command {
	var storiesCount int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily analysis batch once",
		Long: `Fetch the top Hacker News stories and score each one:
ambiguity detection, pattern matching, risk composition, and the
override decision. Results are persisted and the execution is recorded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), storiesCount)
		},
	}

	cmd.Flags().IntVar(&storiesCount, "stories-count", 0,
		"number of top stories to fetch (0 = configured default)")

	return cmd
}

func runBatch(ctx context.Context, storiesCount int) error {
	cfg := domain.FromEnv()
	if storiesCount > 0 {
		cfg.HackerNews.TopStoriesCount = storiesCount
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()

	registry, err := sandbox.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to initialize program registry: %w", err)
	}

	p, err := pipeline.New(cfg, registry, repo, busImpl, hn.NewClient(cfg.HackerNews, cacheImpl))
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := p.Run(ctx); err != nil {
		return err
	}

	fmt.Println("Batch completed.")
	return nil
}
