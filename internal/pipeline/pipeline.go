// Package pipeline orchestrates the full scoring flow for a story: ambiguity
// detection, pattern matching, risk composition, and the override decision,
// followed by persistence and event publication.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentic-news/reaper/internal/ambiguity"
	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/hn"
	"github.com/agentic-news/reaper/internal/override"
	"github.com/agentic-news/reaper/internal/patterns"
	"github.com/agentic-news/reaper/internal/risk"
	"github.com/agentic-news/reaper/internal/sandbox"
)

// EngineVersion is stamped into every evaluation's metadata.
const EngineVersion = "1.0.0"

// Pipeline wires the four scoring stages to storage, the event bus, and the
// upstream story source.
type Pipeline struct {
	detector *ambiguity.Detector
	engine   *patterns.Engine
	composer *risk.Composer
	policy   *override.Policy

	repo domain.Repository
	bus  domain.EventBus
	hn   *hn.Client

	cfg         *domain.Config
	tracer      trace.Tracer
	asyncIngest bool
}

// New builds a pipeline from configuration. All scoring programs are compiled
// eagerly, so a malformed program fails here rather than on the first story.
// Pattern templates are loaded from cfg.Scoring.PatternsFile; a missing file
// yields an empty template set.
func New(cfg *domain.Config, registry *sandbox.Registry, repo domain.Repository, bus domain.EventBus, client *hn.Client) (*Pipeline, error) {
	detector, err := ambiguity.NewDetector(registry, cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("failed to create ambiguity detector: %w", err)
	}

	engine, err := patterns.NewEngine(registry, cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern engine: %w", err)
	}
	if err := engine.LoadFile(cfg.Scoring.PatternsFile); err != nil {
		return nil, fmt.Errorf("failed to load pattern templates: %w", err)
	}

	composer, err := risk.NewComposer(registry, cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("failed to create risk composer: %w", err)
	}

	policy, err := override.NewPolicy(registry, cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("failed to create override policy: %w", err)
	}

	return &Pipeline{
		detector: detector,
		engine:   engine,
		composer: composer,
		policy:   policy,
		repo:     repo,
		bus:      bus,
		hn:       client,
		cfg:      cfg,
		tracer:   otel.Tracer("reaper/pipeline"),
	}, nil
}

// Engine exposes the pattern engine for template management endpoints.
func (p *Pipeline) Engine() *patterns.Engine {
	return p.engine
}

// SetAsyncIngest switches batch runs to publish-only ingestion. A worker
// subscribed to the ingest topic scores each story exactly once; scoring it
// here as well would record every result twice.
func (p *Pipeline) SetAsyncIngest(enabled bool) {
	p.asyncIngest = enabled
}

// BundleFromStory derives a signal bundle from a raw story. Analytic signals
// that need comment-level processing (sentiment variance, spam score, upvote
// ratio) default to zero; callers with richer signals build the bundle
// themselves.
func BundleFromStory(story *domain.Story) *domain.SignalBundle {
	return &domain.SignalBundle{
		StoryID:      story.ID,
		Title:        story.Title,
		URL:          story.URL,
		CommentCount: story.Descendants,
		Score:        story.Score,
	}
}

// ProcessStory runs all four scoring stages over one signal bundle, persists
// every produced value object, publishes the resulting events, and returns
// the complete evaluation. A single stage failure is logged and skipped; it
// never aborts the evaluation.
func (p *Pipeline) ProcessStory(ctx context.Context, bundle *domain.SignalBundle) (*domain.StoryEvaluation, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ProcessStory",
		trace.WithAttributes(attribute.String("story.id", bundle.StoryID)))
	defer span.End()

	start := time.Now()
	eval := &domain.StoryEvaluation{
		ID:        uuid.NewString(),
		StoryID:   bundle.StoryID,
		Timestamp: start.UTC(),
	}

	// Stage 1: ambiguity detection.
	ambiguityStart := time.Now()
	flag, err := p.detector.Analyze(ctx, bundle.StoryID, bundle.Title, bundle.CommentCount)
	if err != nil {
		slog.Error("ambiguity analysis failed", "story_id", bundle.StoryID, "error", err)
	} else {
		eval.Ambiguity = flag
	}
	ambiguityMs := time.Since(ambiguityStart).Milliseconds()

	// Stage 2: pattern matching.
	patternsStart := time.Now()
	eval.Patterns = p.engine.Match(ctx, bundle)
	patternsMs := time.Since(patternsStart).Milliseconds()

	// Stages 3 and 4: one failure mode and one override decision per
	// matched instance. A blacklisted URL pins the spam input to the
	// maximum regardless of the supplied score.
	spamScore := bundle.SpamScore
	if bundle.Blacklisted {
		spamScore = 1.0
	}
	riskStart := time.Now()
	for _, instance := range eval.Patterns {
		failure, err := p.composer.Compose(ctx, instance.ID, bundle.CommentCount, spamScore, bundle.SentimentVariance)
		if err != nil {
			slog.Error("risk composition failed",
				"story_id", bundle.StoryID,
				"instance_id", instance.ID,
				"error", err)
			continue
		}
		eval.Failures = append(eval.Failures, *failure)

		decision, err := p.policy.Evaluate(ctx, override.Request{
			StoryID:     bundle.StoryID,
			RiskScore:   failure.RiskScore,
			PatternType: classifyPattern(instance.PatternID),
		})
		if err != nil {
			slog.Error("override evaluation failed",
				"story_id", bundle.StoryID,
				"instance_id", instance.ID,
				"error", err)
			continue
		}
		eval.Overrides = append(eval.Overrides, *decision)
	}
	riskMs := time.Since(riskStart).Milliseconds()

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:          traceID(span, eval.ID),
		AmbiguityMs:      ambiguityMs,
		PatternsMs:       patternsMs,
		RiskMs:           riskMs,
		TotalMs:          time.Since(start).Milliseconds(),
		TemplatesChecked: p.engine.TemplateCount(),
		PatternsMatched:  len(eval.Patterns),
		EngineVersion:    EngineVersion,
	}

	p.persist(ctx, eval)
	p.publish(ctx, eval)

	slog.Info("story evaluated",
		"story_id", bundle.StoryID,
		"evaluation_id", eval.ID,
		"patterns_matched", len(eval.Patterns),
		"max_risk", eval.MaxRiskScore(),
		"requires_review", eval.RequiresHumanReview(),
		"total_ms", eval.Metadata.TotalMs)

	return eval, nil
}

// Run executes the daily batch: fetch the top stories, persist the raw items,
// and score each one. A per-story failure is logged and the batch continues.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	date := time.Now().UTC()
	if err := p.repo.StartExecution(ctx, date); err != nil {
		return fmt.Errorf("failed to record execution start: %w", err)
	}

	ids, err := p.hn.TopStories(ctx, p.cfg.HackerNews.TopStoriesCount)
	if err != nil {
		_ = p.repo.CompleteExecution(ctx, date, err.Error())
		return fmt.Errorf("failed to fetch top stories: %w", err)
	}

	stories, err := p.hn.StoriesBatch(ctx, ids)
	if err != nil {
		_ = p.repo.CompleteExecution(ctx, date, err.Error())
		return fmt.Errorf("failed to fetch story batch: %w", err)
	}

	slog.Info("batch started", "requested", len(ids), "fetched", len(stories))

	processed := 0
	failed := 0
	for _, story := range stories {
		if err := p.ingestStory(ctx, story); err != nil {
			slog.Error("story processing failed", "story_id", story.ID, "error", err)
			failed++
			continue
		}
		processed++
	}

	errMsg := ""
	if failed > 0 {
		errMsg = fmt.Sprintf("%d of %d stories failed", failed, len(stories))
	}
	if err := p.repo.CompleteExecution(ctx, date, errMsg); err != nil {
		return fmt.Errorf("failed to record execution completion: %w", err)
	}

	slog.Info("batch completed", "processed", processed, "failed", failed)
	return nil
}

func (p *Pipeline) ingestStory(ctx context.Context, story *domain.Story) error {
	if err := p.repo.SaveStory(ctx, story); err != nil {
		return fmt.Errorf("failed to save story: %w", err)
	}

	payload, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("failed to encode story: %w", err)
	}
	if err := p.bus.Publish(ctx, domain.TopicStoryIngested, payload); err != nil {
		if p.asyncIngest {
			return fmt.Errorf("failed to publish ingest event: %w", err)
		}
		slog.Warn("failed to publish ingest event", "story_id", story.ID, "error", err)
	}

	// With a worker consuming the ingest topic, the publish above is the
	// hand-off; scoring the story here too would evaluate it twice.
	if p.asyncIngest {
		return nil
	}

	_, err = p.ProcessStory(ctx, BundleFromStory(story))
	return err
}

// persist writes every value object produced by the evaluation. Storage
// failures are logged; the evaluation itself is still returned to the caller.
func (p *Pipeline) persist(ctx context.Context, eval *domain.StoryEvaluation) {
	if eval.Ambiguity != nil {
		if err := p.repo.SaveAmbiguityFlag(ctx, eval.Ambiguity); err != nil {
			slog.Error("failed to save ambiguity flag", "story_id", eval.StoryID, "error", err)
		}
	}
	for i := range eval.Patterns {
		if err := p.repo.SavePatternInstance(ctx, &eval.Patterns[i]); err != nil {
			slog.Error("failed to save pattern instance", "instance_id", eval.Patterns[i].ID, "error", err)
		}
	}
	for i := range eval.Failures {
		if err := p.repo.SaveFailureMode(ctx, &eval.Failures[i]); err != nil {
			slog.Error("failed to save failure mode", "instance_id", eval.Failures[i].PatternInstanceID, "error", err)
		}
	}
	for i := range eval.Overrides {
		if err := p.repo.SaveOverrideDecision(ctx, &eval.Overrides[i]); err != nil {
			slog.Error("failed to save override decision", "story_id", eval.Overrides[i].StoryID, "error", err)
		}
	}
	if err := p.repo.SaveEvaluation(ctx, eval); err != nil {
		slog.Error("failed to save evaluation", "evaluation_id", eval.ID, "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, eval *domain.StoryEvaluation) {
	if payload, err := json.Marshal(eval); err == nil {
		if err := p.bus.Publish(ctx, domain.TopicStoryScored, payload); err != nil {
			slog.Warn("failed to publish scored event", "story_id", eval.StoryID, "error", err)
		}
	}

	if eval.Ambiguity != nil {
		if payload, err := json.Marshal(eval.Ambiguity); err == nil {
			if err := p.bus.Publish(ctx, domain.TopicAmbiguityFlagged, payload); err != nil {
				slog.Warn("failed to publish ambiguity event", "story_id", eval.StoryID, "error", err)
			}
		}
	}

	for i := range eval.Overrides {
		if !eval.Overrides[i].RequiresOverride {
			continue
		}
		if payload, err := json.Marshal(&eval.Overrides[i]); err == nil {
			if err := p.bus.Publish(ctx, domain.TopicOverrideRequired, payload); err != nil {
				slog.Warn("failed to publish override event", "story_id", eval.StoryID, "error", err)
			}
		}
	}
}

// classifyPattern maps a template ID to an override pattern type. Unmatched
// IDs fall through to the generic classification.
func classifyPattern(patternID string) string {
	id := strings.ToLower(patternID)
	switch {
	case strings.Contains(id, "financial"), strings.Contains(id, "invest"), strings.Contains(id, "market"):
		return domain.PatternTypeFinancial
	case strings.Contains(id, "security"), strings.Contains(id, "breach"), strings.Contains(id, "vuln"):
		return domain.PatternTypeSecurity
	default:
		return ""
	}
}

func traceID(span trace.Span, fallback string) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return fallback
}
