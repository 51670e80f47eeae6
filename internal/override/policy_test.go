package override

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/sandbox"
)

func newTestPolicy(t *testing.T, threshold float64) *Policy {
	t.Helper()
	reg, err := sandbox.NewRegistry()
	if err != nil {
		t.Fatalf("failed to create sandbox registry: %v", err)
	}
	p, err := NewPolicy(reg, domain.ScoringConfig{
		OverrideThreshold: threshold,
		RunTimeout:        time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	return p
}

func TestFinancialPatternOverride(t *testing.T) {
	p := newTestPolicy(t, 0.9)

	d, err := p.Evaluate(context.Background(), Request{
		StoryID:     "s1",
		RiskScore:   0.95,
		PatternType: domain.PatternTypeFinancial,
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !d.RequiresOverride {
		t.Error("expected override required")
	}
	if !strings.Contains(d.Reason, "market-impact") {
		t.Errorf("reason must mention market impact: %q", d.Reason)
	}
	if !strings.Contains(d.Recommendation, "CFO") {
		t.Errorf("recommendation must mention CFO: %q", d.Recommendation)
	}
}

func TestSecurityPatternOverride(t *testing.T) {
	p := newTestPolicy(t, 0.9)

	d, err := p.Evaluate(context.Background(), Request{
		StoryID:     "s1",
		RiskScore:   0.92,
		PatternType: domain.PatternTypeSecurity,
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !d.RequiresOverride {
		t.Error("expected override required")
	}
	if !strings.Contains(d.Reason, "Security or privacy") {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if d.Recommendation != "Security review required" {
		t.Errorf("unexpected recommendation: %q", d.Recommendation)
	}
}

func TestGenericPatternOverride(t *testing.T) {
	p := newTestPolicy(t, 0.9)

	d, err := p.Evaluate(context.Background(), Request{
		StoryID:   "s1",
		RiskScore: 0.95,
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !d.RequiresOverride {
		t.Error("expected override required")
	}
	if !strings.Contains(d.Reason, "exceeds override threshold") {
		t.Errorf("generic reason must cite the threshold: %q", d.Reason)
	}
	if !strings.Contains(d.Reason, "0.95") || !strings.Contains(d.Reason, "0.9") {
		t.Errorf("generic reason must cite score and threshold: %q", d.Reason)
	}
	if !strings.Contains(d.Recommendation, "Manual review") {
		t.Errorf("unexpected recommendation: %q", d.Recommendation)
	}
}

func TestNoOverrideBelowThreshold(t *testing.T) {
	p := newTestPolicy(t, 0.9)

	d, err := p.Evaluate(context.Background(), Request{
		StoryID:     "s1",
		RiskScore:   0.4,
		PatternType: domain.PatternTypeFinancial,
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if d.RequiresOverride {
		t.Error("expected no override below threshold")
	}
	if !strings.Contains(d.Reason, "within acceptable threshold") {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if d.Recommendation != "" {
		t.Errorf("recommendation must be absent below threshold, got %q", d.Recommendation)
	}
}

func TestBoundaryIsInclusive(t *testing.T) {
	p := newTestPolicy(t, 0.9)

	d, err := p.Evaluate(context.Background(), Request{StoryID: "s1", RiskScore: 0.9})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !d.RequiresOverride {
		t.Error("risk score equal to the threshold must require override")
	}
}

func TestDecisionCarriesScoreAndStory(t *testing.T) {
	p := newTestPolicy(t, 0.5)

	d, err := p.Evaluate(context.Background(), Request{StoryID: "story-7", RiskScore: 0.61})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if d.StoryID != "story-7" {
		t.Errorf("unexpected story id %q", d.StoryID)
	}
	if d.RiskScore != 0.61 {
		t.Errorf("unexpected risk score %v", d.RiskScore)
	}
}

func TestBatchIsIndependentPerItem(t *testing.T) {
	p := newTestPolicy(t, 0.9)

	decisions := p.EvaluateBatch(context.Background(), []Request{
		{StoryID: "a", RiskScore: 0.95, PatternType: domain.PatternTypeFinancial},
		{StoryID: "b", RiskScore: 0.1},
		{StoryID: "c", RiskScore: 0.9},
	})
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	if !decisions[0].RequiresOverride || decisions[1].RequiresOverride || !decisions[2].RequiresOverride {
		t.Errorf("unexpected decision states: %+v", decisions)
	}
}
