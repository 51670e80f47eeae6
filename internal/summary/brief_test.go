package summary

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "summary.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedWeek(t *testing.T, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()

	flags := []*domain.AmbiguityFlag{
		{StoryID: "s1", Title: "SHOCKING news", AmbiguityScore: 0.8, Reason: "Clickbait phrases detected"},
		{StoryID: "s2", Title: "Is this real?", AmbiguityScore: 0.9, Reason: "Question headline suggests uncertainty"},
	}
	for _, f := range flags {
		if err := repo.SaveAmbiguityFlag(ctx, f); err != nil {
			t.Fatalf("SaveAmbiguityFlag failed: %v", err)
		}
	}

	instances := []*domain.PatternInstance{
		{ID: "i1", PatternID: "financial_hype", StoryID: "s1", Confidence: 0.9, CreatedAt: time.Now().UTC()},
		{ID: "i2", PatternID: "financial_hype", StoryID: "s2", Confidence: 0.7, CreatedAt: time.Now().UTC()},
		{ID: "i3", PatternID: "security_breach", StoryID: "s3", Confidence: 0.8, CreatedAt: time.Now().UTC()},
	}
	for _, inst := range instances {
		if err := repo.SavePatternInstance(ctx, inst); err != nil {
			t.Fatalf("SavePatternInstance failed: %v", err)
		}
	}

	overrides := []*domain.OverrideDecision{
		{StoryID: "s1", RequiresOverride: true, RiskScore: 0.95, Reason: "r1"},
		{StoryID: "s2", RequiresOverride: false, RiskScore: 0.4, Reason: "r2"},
		{StoryID: "s3", RequiresOverride: true, RiskScore: 0.91, Reason: "r3"},
	}
	for _, d := range overrides {
		if err := repo.SaveOverrideDecision(ctx, d); err != nil {
			t.Fatalf("SaveOverrideDecision failed: %v", err)
		}
	}
}

func TestGenerate(t *testing.T) {
	repo := newTestRepo(t)
	seedWeek(t, repo)

	gen := NewGenerator(repo)
	s, err := gen.Generate(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if s.StoriesFlagged != 2 {
		t.Errorf("expected 2 flagged stories, got %d", s.StoriesFlagged)
	}
	if s.PatternsDetected != 3 {
		t.Errorf("expected 3 pattern instances, got %d", s.PatternsDetected)
	}
	if s.OverridesRequired != 2 {
		t.Errorf("expected 2 required overrides, got %d", s.OverridesRequired)
	}
	if s.MaxRiskScore != 0.95 {
		t.Errorf("expected max risk 0.95, got %.2f", s.MaxRiskScore)
	}

	want := (0.9 + 0.7 + 0.8) / 3
	if diff := s.AvgConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg confidence %.4f, got %.4f", want, s.AvgConfidence)
	}

	if len(s.TopPatterns) != 2 {
		t.Fatalf("expected 2 top patterns, got %d", len(s.TopPatterns))
	}
	if s.TopPatterns[0].PatternID != "financial_hype" || s.TopPatterns[0].Count != 2 {
		t.Errorf("unexpected top pattern: %+v", s.TopPatterns[0])
	}
}

func TestGenerateEmptyWeek(t *testing.T) {
	repo := newTestRepo(t)

	gen := NewGenerator(repo)
	s, err := gen.Generate(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if s.StoriesFlagged != 0 || s.PatternsDetected != 0 || s.OverridesRequired != 0 {
		t.Errorf("expected empty summary, got %+v", s)
	}
	if s.AvgConfidence != 0 {
		t.Errorf("expected 0 avg confidence, got %.2f", s.AvgConfidence)
	}
}

func TestGeneratePersistsAndLoads(t *testing.T) {
	repo := newTestRepo(t)
	seedWeek(t, repo)

	gen := NewGenerator(repo)
	now := time.Now().UTC()

	if _, err := gen.Generate(context.Background(), now); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	loaded, err := gen.Load(context.Background(), now)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PatternsDetected != 3 {
		t.Errorf("expected 3 patterns in stored summary, got %d", loaded.PatternsDetected)
	}
}

func TestWeekStart(t *testing.T) {
	// 2026-08-23 is a Sunday; its week starts Monday 2026-08-17.
	sunday := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	got := WeekStart(sunday)
	want := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// A Monday maps to itself at midnight.
	monday := time.Date(2026, 8, 17, 9, 0, 0, 0, time.UTC)
	if got := WeekStart(monday); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRender(t *testing.T) {
	s := &WeeklySummary{
		WeekStart:         time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		WeekEnd:           time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		StoriesFlagged:    2,
		PatternsDetected:  3,
		OverridesRequired: 1,
		AvgConfidence:     0.8,
		MaxRiskScore:      0.95,
		TopPatterns:       []PatternCount{{PatternID: "financial_hype", Count: 2}},
		GeneratedAt:       time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC),
	}

	text := Render(s)
	for _, want := range []string{
		"Weekly Brief: 2026-08-17 to 2026-08-24",
		"Stories flagged for ambiguity: 2",
		"financial_hype",
		"0.95",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered brief missing %q:\n%s", want, text)
		}
	}
}
