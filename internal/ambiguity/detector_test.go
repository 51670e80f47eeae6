package ambiguity

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/sandbox"
)

func newTestDetector(t *testing.T, threshold float64) *Detector {
	t.Helper()
	reg, err := sandbox.NewRegistry()
	if err != nil {
		t.Fatalf("failed to create sandbox registry: %v", err)
	}
	d, err := NewDetector(reg, domain.ScoringConfig{
		AmbiguityThreshold: threshold,
		RunTimeout:         time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	return d
}

func TestClickbaitTitleFlagged(t *testing.T) {
	d := newTestDetector(t, 0.3)

	flag, err := d.Analyze(context.Background(), "s1", "This is shocking!", 0)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if flag == nil {
		t.Fatal("expected a flag for a clickbait title")
	}
	if flag.AmbiguityScore < 0.3 {
		t.Errorf("expected score >= 0.3, got %v", flag.AmbiguityScore)
	}
	if flag.StoryID != "s1" || flag.Title != "This is shocking!" {
		t.Errorf("flag fields wrong: %+v", flag)
	}
}

func TestUnambiguousTitleNotFlagged(t *testing.T) {
	d := newTestDetector(t, 0.3)

	flag, err := d.Analyze(context.Background(), "s1", "Go 1.25 release notes", 10)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if flag != nil {
		t.Errorf("expected no flag, got %+v", flag)
	}
}

func TestBelowThresholdNotFlagged(t *testing.T) {
	d := newTestDetector(t, 0.78)

	// Single clickbait hit scores 0.3, below the default threshold.
	flag, err := d.Analyze(context.Background(), "s1", "This is shocking!", 0)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if flag != nil {
		t.Errorf("expected no flag below threshold, got %+v", flag)
	}
}

func TestScoreAccumulation(t *testing.T) {
	d := newTestDetector(t, 0.78)
	ctx := context.Background()

	tests := []struct {
		name         string
		title        string
		commentCount int
		want         float64
	}{
		{"plain", "Quiet infrastructure update", 0, 0.0},
		{"single clickbait", "This is shocking!", 0, 0.3},
		{"two clickbait phrases", "Shocking and unbelievable results", 0, 0.6},
		{"question mark", "Is Go dead?", 0, 0.2},
		{"all caps", "READ THIS NOW", 0, 0.15},
		{"caps heavy", "BIG NEWS About Go", 0, 0.1},
		{"high comments", "Quiet infrastructure update", 150, 0.1},
		{"clickbait question with crowd", "Shocking result?", 150, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := d.Score(ctx, tt.title, tt.commentCount)
			if err != nil {
				t.Fatalf("score failed: %v", err)
			}
			if math.Abs(score-tt.want) > 1e-9 {
				t.Errorf("title %q: expected %v, got %v", tt.title, tt.want, score)
			}
		})
	}
}

func TestScoreClampedAtOne(t *testing.T) {
	d := newTestDetector(t, 0.78)

	// Every heuristic fires at once.
	score, err := d.Score(context.Background(), "SHOCKING! UNBELIEVABLE! YOU WON'T BELIEVE THIS ONE?", 500)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("expected score clamped to 1.0, got %v", score)
	}
}

func TestReasonPrecedence(t *testing.T) {
	d := newTestDetector(t, 0.1)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"question wins", "Shocking result?", "question mark"},
		{"all caps next", "SHOCKING NEWS", "all caps"},
		{"clickbait next", "This is shocking!", "clickbait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag, err := d.Analyze(ctx, "s1", tt.title, 0)
			if err != nil {
				t.Fatalf("analyze failed: %v", err)
			}
			if flag == nil {
				t.Fatalf("expected a flag for %q", tt.title)
			}
			if !strings.Contains(flag.Reason, tt.want) {
				t.Errorf("expected reason mentioning %q, got %q", tt.want, flag.Reason)
			}
		})
	}
}

func TestGenericReasonCarriesScore(t *testing.T) {
	d := newTestDetector(t, 0.1)

	// Caps-heavy plus crowd, but no question, all-caps, or clickbait.
	flag, err := d.Analyze(context.Background(), "s1", "BIG NEWS About Go", 150)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if flag == nil {
		t.Fatal("expected a flag")
	}
	if !strings.Contains(flag.Reason, "High ambiguity score (0.20)") {
		t.Errorf("generic reason must carry the score: %q", flag.Reason)
	}
}

func TestCapsHeuristics(t *testing.T) {
	if !isAllUpper("READ THIS NOW") {
		t.Error("expected all-upper detection")
	}
	if isAllUpper("READ this NOW") {
		t.Error("mixed case is not all-upper")
	}
	if isAllUpper("1234 !!!") {
		t.Error("no letters is not all-upper")
	}
	if !isCapsHeavy("ABCDE fghij ABCDE") {
		t.Error("expected caps-heavy detection")
	}
	if isCapsHeavy("Mostly lower case text") {
		t.Error("expected not caps-heavy")
	}
}
