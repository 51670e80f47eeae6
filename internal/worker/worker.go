// Package worker consumes ingested stories from the event bus and scores
// them asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/pipeline"
)

// Worker subscribes to the story ingest topic and feeds each story through
// the scoring pipeline. Persistence and result publication happen inside the
// pipeline; the worker only bridges the bus to it.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an async scoring worker.
func NewWorker(bus domain.EventBus, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingest topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicStoryIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicStoryIngested)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var story domain.Story
	if err := json.Unmarshal(msg.Payload, &story); err != nil {
		slog.Error("failed to parse story message",
			"message_id", msg.ID,
			"error", err)
		return err
	}

	slog.Debug("processing story", "story_id", story.ID, "message_id", msg.ID)

	eval, err := w.pipeline.ProcessStory(ctx, pipeline.BundleFromStory(&story))
	if err != nil {
		slog.Error("story scoring failed",
			"story_id", story.ID,
			"error", err)
		return err
	}

	slog.Info("story scored async",
		"story_id", story.ID,
		"evaluation_id", eval.ID,
		"patterns_matched", len(eval.Patterns),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// Stop unsubscribes from all topics.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
