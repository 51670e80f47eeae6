package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-news/reaper/internal/api"
	"github.com/agentic-news/reaper/internal/bus"
	"github.com/agentic-news/reaper/internal/cache"
	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/hn"
	"github.com/agentic-news/reaper/internal/pipeline"
	"github.com/agentic-news/reaper/internal/repository"
	"github.com/agentic-news/reaper/internal/sandbox"
	"github.com/agentic-news/reaper/internal/summary"
	"github.com/agentic-news/reaper/internal/worker"
)

func newServeCmd() *cobra.Command {
	var asyncWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(asyncWorker)
		},
	}

	cmd.Flags().BoolVar(&asyncWorker, "async-worker", false,
		"also consume ingested stories from the event bus")

	return cmd
}

func serve(withWorker bool) error {
	cfg := domain.FromEnv()

	slog.Info("starting reaper",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	registry, err := sandbox.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to initialize program registry: %w", err)
	}

	client := hn.NewClient(cfg.HackerNews, cacheImpl)

	p, err := pipeline.New(cfg, registry, repo, busImpl, client)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	slog.Info("pipeline initialized",
		"templates", p.Engine().TemplateCount(),
		"programs", registry.Size(),
	)

	var w *worker.Worker
	if withWorker || os.Getenv("REAPER_ASYNC_WORKER") == "true" {
		w = worker.NewWorker(busImpl, p)
		if err := w.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			w = nil
		} else {
			// Batch runs hand stories to the worker instead of scoring
			// them inline, so each story is evaluated exactly once.
			p.SetAsyncIngest(true)
		}
	}

	briefs := summary.NewGenerator(repo)
	srv := api.NewServer(cfg.Server, repo, cacheImpl, p, briefs, cfg.Scoring.PatternsFile, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("reaper is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if w != nil {
		if err := w.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("reaper shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  reaper - deterministic news scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score             - Score a single story")
	fmt.Println("    POST /run               - Run the daily batch")
	fmt.Println("    GET  /evaluations/{id}  - Get evaluation by ID")
	fmt.Println("    GET  /stories/{id}      - Get raw story by ID")
	fmt.Println("    GET  /patterns          - List pattern templates")
	fmt.Println("    POST /patterns/reload   - Hot-reload templates from file")
	fmt.Println("    GET  /brief             - Weekly summary")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
