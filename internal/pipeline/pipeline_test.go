package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentic-news/reaper/internal/bus"
	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/hn"
	"github.com/agentic-news/reaper/internal/repository"
	"github.com/agentic-news/reaper/internal/sandbox"
)

const testPatterns = `
patterns:
  - id: financial_hype
    description: Market-moving announcement with low scrutiny
    risk_level: high
    trigger_conditions:
      title_contains: ["ipo", "acquisition"]
      min_comments: 1
    confidence_weights:
      title_match: 0.7
      engagement: 0.3
`

func newTestPipeline(t *testing.T, hnServer *httptest.Server) (*Pipeline, domain.Repository, domain.EventBus) {
	t.Helper()

	dir := t.TempDir()

	patternsFile := filepath.Join(dir, "patterns.yaml")
	if err := os.WriteFile(patternsFile, []byte(testPatterns), 0644); err != nil {
		t.Fatalf("failed to write patterns file: %v", err)
	}

	cfg := domain.DefaultConfig()
	cfg.Scoring.PatternsFile = patternsFile
	cfg.HackerNews.TopStoriesCount = 5
	if hnServer != nil {
		cfg.HackerNews.BaseURL = hnServer.URL
	}

	registry, err := sandbox.NewRegistry()
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	client := hn.NewClient(cfg.HackerNews, nil)

	p, err := New(cfg, registry, repo, eventBus, client)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return p, repo, eventBus
}

func TestProcessStoryFullEvaluation(t *testing.T) {
	p, repo, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	bundle := &domain.SignalBundle{
		StoryID:      "s1",
		Title:        "Huge IPO announced today",
		CommentCount: 2,
		Score:        300,
		SpamScore:    0.8,
	}

	eval, err := p.ProcessStory(ctx, bundle)
	if err != nil {
		t.Fatalf("ProcessStory failed: %v", err)
	}

	if len(eval.Patterns) != 1 {
		t.Fatalf("expected 1 pattern instance, got %d", len(eval.Patterns))
	}
	if eval.Patterns[0].PatternID != "financial_hype" {
		t.Errorf("unexpected pattern: %s", eval.Patterns[0].PatternID)
	}
	if len(eval.Failures) != 1 {
		t.Fatalf("expected 1 failure mode, got %d", len(eval.Failures))
	}
	if eval.Failures[0].PatternInstanceID != eval.Patterns[0].ID {
		t.Error("failure mode not linked to its pattern instance")
	}
	if len(eval.Overrides) != 1 {
		t.Fatalf("expected 1 override decision, got %d", len(eval.Overrides))
	}

	if eval.Metadata.TemplatesChecked != 1 {
		t.Errorf("expected 1 template checked, got %d", eval.Metadata.TemplatesChecked)
	}
	if eval.Metadata.PatternsMatched != 1 {
		t.Errorf("expected 1 pattern matched, got %d", eval.Metadata.PatternsMatched)
	}
	if eval.Metadata.EngineVersion != EngineVersion {
		t.Errorf("unexpected engine version: %s", eval.Metadata.EngineVersion)
	}

	// The evaluation must be retrievable from storage.
	stored, err := repo.GetEvaluation(ctx, eval.ID)
	if err != nil {
		t.Fatalf("GetEvaluation failed: %v", err)
	}
	if stored.StoryID != "s1" {
		t.Errorf("unexpected stored story ID: %s", stored.StoryID)
	}
	if len(stored.Patterns) != 1 {
		t.Errorf("expected 1 stored pattern, got %d", len(stored.Patterns))
	}
}

func TestProcessStoryAmbiguousTitle(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	bundle := &domain.SignalBundle{
		StoryID:      "s2",
		Title:        "You won't believe this shocking result?",
		CommentCount: 150,
		Score:        10,
	}

	eval, err := p.ProcessStory(context.Background(), bundle)
	if err != nil {
		t.Fatalf("ProcessStory failed: %v", err)
	}
	if eval.Ambiguity == nil {
		t.Fatal("expected an ambiguity flag")
	}
	if eval.Ambiguity.StoryID != "s2" {
		t.Errorf("unexpected flag story ID: %s", eval.Ambiguity.StoryID)
	}
}

func TestProcessStoryCleanTitle(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	bundle := &domain.SignalBundle{
		StoryID:      "s3",
		Title:        "Postgres 18 release notes",
		CommentCount: 40,
		Score:        120,
	}

	eval, err := p.ProcessStory(context.Background(), bundle)
	if err != nil {
		t.Fatalf("ProcessStory failed: %v", err)
	}
	if eval.Ambiguity != nil {
		t.Errorf("expected no ambiguity flag, got %+v", eval.Ambiguity)
	}
	if len(eval.Patterns) != 0 {
		t.Errorf("expected no pattern matches, got %d", len(eval.Patterns))
	}
	if eval.RequiresHumanReview() {
		t.Error("clean story must not require review")
	}
}

func TestProcessStoryPublishesScoredEvent(t *testing.T) {
	p, _, eventBus := newTestPipeline(t, nil)
	ctx := context.Background()

	var mu sync.Mutex
	var received []*domain.Message
	_, err := eventBus.Subscribe(ctx, domain.TopicStoryScored, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := p.ProcessStory(ctx, &domain.SignalBundle{
		StoryID: "s4",
		Title:   "A quiet story",
	}); err != nil {
		t.Fatalf("ProcessStory failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for scored event")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			fmt.Fprint(w, `[1, 2]`)
		case "/item/1.json":
			fmt.Fprint(w, `{"id": 1, "type": "story", "by": "u1", "title": "Huge IPO announced", "score": 200, "descendants": 3, "time": 1700000000}`)
		case "/item/2.json":
			fmt.Fprint(w, `{"id": 2, "type": "story", "by": "u2", "title": "Compiler internals explained", "score": 90, "descendants": 45, "time": 1700000000}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p, repo, _ := newTestPipeline(t, srv)
	ctx := context.Background()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Raw stories are persisted before scoring.
	story, err := repo.GetStory(ctx, "1")
	if err != nil {
		t.Fatalf("GetStory failed: %v", err)
	}
	if story.Title != "Huge IPO announced" {
		t.Errorf("unexpected title: %s", story.Title)
	}

	// The matching story produced a pattern instance.
	instances, err := repo.ListInstancesSince(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListInstancesSince failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected 1 pattern instance, got %d", len(instances))
	}
	if instances[0].StoryID != "1" {
		t.Errorf("unexpected instance story: %s", instances[0].StoryID)
	}
}

func TestRunBatchAsyncIngestPublishesOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			fmt.Fprint(w, `[1]`)
		case "/item/1.json":
			fmt.Fprint(w, `{"id": 1, "type": "story", "by": "u1", "title": "Huge IPO announced", "score": 200, "descendants": 3, "time": 1700000000}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p, repo, eventBus := newTestPipeline(t, srv)
	p.SetAsyncIngest(true)
	ctx := context.Background()

	var mu sync.Mutex
	ingested := 0
	_, err := eventBus.Subscribe(ctx, domain.TopicStoryIngested, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		ingested++
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := ingested
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ingest event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The raw story is persisted, but scoring is deferred to whoever
	// consumes the ingest topic.
	if _, err := repo.GetStory(ctx, "1"); err != nil {
		t.Fatalf("GetStory failed: %v", err)
	}
	instances, err := repo.ListInstancesSince(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListInstancesSince failed: %v", err)
	}
	if len(instances) != 0 {
		t.Errorf("publish-only ingestion must not score inline, got %d instances", len(instances))
	}
}

func TestProcessStoryBlacklistedPinsSpamRisk(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	eval, err := p.ProcessStory(context.Background(), &domain.SignalBundle{
		StoryID:      "s5",
		Title:        "Huge IPO announced today",
		CommentCount: 20,
		Blacklisted:  true,
	})
	if err != nil {
		t.Fatalf("ProcessStory failed: %v", err)
	}
	if len(eval.Failures) != 1 {
		t.Fatalf("expected 1 failure mode, got %d", len(eval.Failures))
	}
	if eval.Failures[0].SpamRisk != 1.0 {
		t.Errorf("blacklisted story must carry maximum spam risk, got %v", eval.Failures[0].SpamRisk)
	}
	if !strings.Contains(eval.Failures[0].Mitigation, domain.MitigationReview) {
		t.Errorf("expected %q in mitigation, got %q", domain.MitigationReview, eval.Failures[0].Mitigation)
	}
}

func TestBundleFromStory(t *testing.T) {
	story := &domain.Story{
		ID:          "42",
		Title:       "A title",
		URL:         "https://example.com",
		Score:       77,
		Descendants: 12,
	}

	bundle := BundleFromStory(story)
	if bundle.StoryID != "42" {
		t.Errorf("unexpected story ID: %s", bundle.StoryID)
	}
	if bundle.CommentCount != 12 {
		t.Errorf("expected 12 comments, got %d", bundle.CommentCount)
	}
	if bundle.Score != 77 {
		t.Errorf("expected score 77, got %d", bundle.Score)
	}
}

func TestClassifyPattern(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"financial_hype", domain.PatternTypeFinancial},
		{"market_mover", domain.PatternTypeFinancial},
		{"security_breach_wave", domain.PatternTypeSecurity},
		{"vuln_disclosure", domain.PatternTypeSecurity},
		{"generic_noise", ""},
	}
	for _, tc := range cases {
		if got := classifyPattern(tc.id); got != tc.want {
			t.Errorf("classifyPattern(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}
