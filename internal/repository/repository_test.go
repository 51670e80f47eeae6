package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-news/reaper/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "reaper-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetStory", func(t *testing.T) {
		story := &domain.Story{
			ID:          "40001",
			Title:       "Shocking new framework drops",
			URL:         "https://example.com/framework",
			Author:      "pg",
			Score:       142,
			Descendants: 37,
			CreatedAt:   time.Now().UTC().Truncate(time.Second),
			FetchedAt:   time.Now().UTC().Truncate(time.Second),
		}

		if err := repo.SaveStory(ctx, story); err != nil {
			t.Fatalf("SaveStory failed: %v", err)
		}

		retrieved, err := repo.GetStory(ctx, "40001")
		if err != nil {
			t.Fatalf("GetStory failed: %v", err)
		}
		if retrieved.Title != story.Title {
			t.Errorf("expected title %q, got %q", story.Title, retrieved.Title)
		}
		if retrieved.Score != 142 || retrieved.Descendants != 37 {
			t.Errorf("unexpected counters: %+v", retrieved)
		}
	})

	t.Run("SaveStoryUpsertsOnRefetch", func(t *testing.T) {
		story := &domain.Story{
			ID:        "40002",
			Title:     "Initial title",
			Score:     10,
			CreatedAt: time.Now().UTC(),
			FetchedAt: time.Now().UTC(),
		}
		if err := repo.SaveStory(ctx, story); err != nil {
			t.Fatalf("SaveStory failed: %v", err)
		}

		story.Score = 99
		story.Descendants = 12
		if err := repo.SaveStory(ctx, story); err != nil {
			t.Fatalf("second SaveStory failed: %v", err)
		}

		retrieved, err := repo.GetStory(ctx, "40002")
		if err != nil {
			t.Fatalf("GetStory failed: %v", err)
		}
		if retrieved.Score != 99 || retrieved.Descendants != 12 {
			t.Errorf("refetch did not update counters: %+v", retrieved)
		}
	})

	t.Run("GetStoryNotFound", func(t *testing.T) {
		_, err := repo.GetStory(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveStoryRequiresID", func(t *testing.T) {
		err := repo.SaveStory(ctx, &domain.Story{Title: "no id"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("AmbiguityFlags", func(t *testing.T) {
		flag := &domain.AmbiguityFlag{
			StoryID:        "40001",
			Title:          "Shocking new framework drops",
			AmbiguityScore: 0.45,
			Reason:         "Title contains clickbait indicators",
		}
		if err := repo.SaveAmbiguityFlag(ctx, flag); err != nil {
			t.Fatalf("SaveAmbiguityFlag failed: %v", err)
		}

		flags, err := repo.ListFlagsSince(ctx, time.Now().UTC().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ListFlagsSince failed: %v", err)
		}
		if len(flags) != 1 {
			t.Fatalf("expected 1 flag, got %d", len(flags))
		}
		if flags[0].AmbiguityScore != 0.45 || flags[0].StoryID != "40001" {
			t.Errorf("unexpected flag: %+v", flags[0])
		}
	})

	t.Run("PatternInstancesAndFailureModes", func(t *testing.T) {
		instance := &domain.PatternInstance{
			ID:         uuid.NewString(),
			PatternID:  "hype_cycle",
			StoryID:    "40001",
			Confidence: 0.82,
			PatternData: domain.PatternData{
				Title:       "Shocking new framework drops",
				Description: "Hype-driven title with high score",
				RiskLevel:   domain.RiskLevelMedium,
			},
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		if err := repo.SavePatternInstance(ctx, instance); err != nil {
			t.Fatalf("SavePatternInstance failed: %v", err)
		}

		mode := &domain.FailureMode{
			PatternInstanceID: instance.ID,
			RiskScore:         0.49,
			EngagementRisk:    0.6,
			SpamRisk:          0.5,
			SentimentDrift:    0.3,
			Mitigation:        domain.MitigationProceed,
			Reason:            "Low overall risk",
		}
		if err := repo.SaveFailureMode(ctx, mode); err != nil {
			t.Fatalf("SaveFailureMode failed: %v", err)
		}

		instances, err := repo.ListInstancesSince(ctx, time.Now().UTC().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ListInstancesSince failed: %v", err)
		}
		if len(instances) != 1 {
			t.Fatalf("expected 1 instance, got %d", len(instances))
		}
		if instances[0].PatternID != "hype_cycle" {
			t.Errorf("unexpected instance: %+v", instances[0])
		}
		if instances[0].PatternData.RiskLevel != domain.RiskLevelMedium {
			t.Errorf("pattern data snapshot lost: %+v", instances[0].PatternData)
		}
	})

	t.Run("OverrideLog", func(t *testing.T) {
		decision := &domain.OverrideDecision{
			StoryID:          "40001",
			RequiresOverride: true,
			RiskScore:        0.95,
			Reason:           "Potential market-impact investment decision",
			Recommendation:   "Review with CFO before proceeding",
		}
		if err := repo.SaveOverrideDecision(ctx, decision); err != nil {
			t.Fatalf("SaveOverrideDecision failed: %v", err)
		}

		decisions, err := repo.ListOverridesSince(ctx, time.Now().UTC().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ListOverridesSince failed: %v", err)
		}
		if len(decisions) != 1 {
			t.Fatalf("expected 1 decision, got %d", len(decisions))
		}
		if !decisions[0].RequiresOverride || decisions[0].RiskScore != 0.95 {
			t.Errorf("unexpected decision: %+v", decisions[0])
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := &domain.StoryEvaluation{
			ID:        uuid.NewString(),
			StoryID:   "40001",
			Timestamp: time.Now().UTC().Truncate(time.Second),
			Ambiguity: &domain.AmbiguityFlag{
				StoryID:        "40001",
				Title:          "Shocking new framework drops",
				AmbiguityScore: 0.45,
				Reason:         "Title contains clickbait indicators",
			},
			Patterns: []domain.PatternInstance{
				{ID: uuid.NewString(), PatternID: "hype_cycle", StoryID: "40001", Confidence: 0.82},
			},
			Overrides: []domain.OverrideDecision{
				{StoryID: "40001", RequiresOverride: false, RiskScore: 0.3},
			},
			Metadata: domain.EvaluationMetadata{
				TraceID:          "trace-1",
				TemplatesChecked: 4,
				PatternsMatched:  1,
				EngineVersion:    "1.0.0",
			},
		}

		if err := repo.SaveEvaluation(ctx, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, eval.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if retrieved.StoryID != "40001" {
			t.Errorf("unexpected story id %q", retrieved.StoryID)
		}
		if retrieved.Ambiguity == nil || retrieved.Ambiguity.AmbiguityScore != 0.45 {
			t.Errorf("ambiguity flag lost: %+v", retrieved.Ambiguity)
		}
		if len(retrieved.Patterns) != 1 || retrieved.Patterns[0].PatternID != "hype_cycle" {
			t.Errorf("patterns lost: %+v", retrieved.Patterns)
		}
		if retrieved.Metadata.TemplatesChecked != 4 {
			t.Errorf("metadata lost: %+v", retrieved.Metadata)
		}
	})

	t.Run("EvaluationWithoutAmbiguity", func(t *testing.T) {
		eval := &domain.StoryEvaluation{
			ID:        uuid.NewString(),
			StoryID:   "40002",
			Timestamp: time.Now().UTC(),
		}
		if err := repo.SaveEvaluation(ctx, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, eval.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if retrieved.Ambiguity != nil {
			t.Errorf("expected nil ambiguity, got %+v", retrieved.Ambiguity)
		}
	})

	t.Run("WeeklySummaries", func(t *testing.T) {
		weekStart := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
		summary := []byte(`{"total_flags": 3, "total_patterns": 7}`)

		if err := repo.SaveWeeklySummary(ctx, weekStart, summary); err != nil {
			t.Fatalf("SaveWeeklySummary failed: %v", err)
		}

		retrieved, err := repo.GetWeeklySummary(ctx, weekStart)
		if err != nil {
			t.Fatalf("GetWeeklySummary failed: %v", err)
		}
		if string(retrieved) != string(summary) {
			t.Errorf("expected %s, got %s", summary, retrieved)
		}

		// Regenerating replaces the stored summary.
		updated := []byte(`{"total_flags": 4, "total_patterns": 9}`)
		if err := repo.SaveWeeklySummary(ctx, weekStart, updated); err != nil {
			t.Fatalf("second SaveWeeklySummary failed: %v", err)
		}
		retrieved, _ = repo.GetWeeklySummary(ctx, weekStart)
		if string(retrieved) != string(updated) {
			t.Errorf("expected %s, got %s", updated, retrieved)
		}
	})

	t.Run("WeeklySummaryNotFound", func(t *testing.T) {
		_, err := repo.GetWeeklySummary(ctx, time.Date(1999, 1, 4, 0, 0, 0, 0, time.UTC))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ExecutionState", func(t *testing.T) {
		date := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

		if err := repo.StartExecution(ctx, date); err != nil {
			t.Fatalf("StartExecution failed: %v", err)
		}
		if err := repo.CompleteExecution(ctx, date, ""); err != nil {
			t.Fatalf("CompleteExecution failed: %v", err)
		}

		// Restart the same day: upsert, then record a failure.
		if err := repo.StartExecution(ctx, date); err != nil {
			t.Fatalf("restart failed: %v", err)
		}
		if err := repo.CompleteExecution(ctx, date, "upstream fetch failed"); err != nil {
			t.Fatalf("CompleteExecution with error failed: %v", err)
		}
	})

	t.Run("CompleteExecutionUnknownDate", func(t *testing.T) {
		err := repo.CompleteExecution(ctx, time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), "")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNewRepositoryUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	sqlite := &SQLRepository{driver: "sqlite"}
	postgres := &SQLRepository{driver: "postgres"}

	query := "SELECT * FROM stories WHERE story_id = ? AND score > ?"

	if got := sqlite.rebind(query); got != query {
		t.Errorf("sqlite rebind must be identity, got %q", got)
	}

	want := "SELECT * FROM stories WHERE story_id = $1 AND score > $2"
	if got := postgres.rebind(query); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
