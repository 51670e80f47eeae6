// Package override decides whether a scored story needs human approval
// before any automated action proceeds.
package override

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/sandbox"
)

// decisionProgram is the complete override decision. The boundary is
// inclusive: a risk score exactly at the threshold requires override.
// Financial and security patterns get fixed classifications; anything else
// falls through to the generic reason citing score and threshold.
const decisionProgram = `
cel.bind(required, risk_score >= override_threshold,
  {
    "story_id": story_id,
    "requires_override": required,
    "risk_score": risk_score,
    "reason": !required
      ? "Risk score " + string(risk_score) + " within acceptable threshold"
      : (pattern_type == "financial"
          ? "Potential market-impact investment decision"
          : (pattern_type == "security"
              ? "Security or privacy-related pattern detected"
              : "Risk score " + string(risk_score)
                  + " exceeds override threshold " + string(override_threshold))),
    "recommendation": !required
      ? ""
      : (pattern_type == "financial"
          ? "Review with CFO before proceeding"
          : (pattern_type == "security"
              ? "Security review required"
              : "Manual review recommended"))
  })`

var decisionStubs = map[string]*cel.Type{
	"story_id":           cel.StringType,
	"risk_score":         cel.DoubleType,
	"pattern_type":       cel.StringType,
	"override_threshold": cel.DoubleType,
}

// Request is one story to evaluate. PatternType may be empty.
type Request struct {
	StoryID     string
	RiskScore   float64
	PatternType string
}

// Policy is a stateless two-state decision: No-Override or
// Override-Required, decided solely by the risk score against the
// configured threshold.
type Policy struct {
	registry  *sandbox.Registry
	threshold float64
	timeout   time.Duration
}

// NewPolicy creates an override policy and compiles its decision program.
func NewPolicy(registry *sandbox.Registry, cfg domain.ScoringConfig) (*Policy, error) {
	p := &Policy{
		registry:  registry,
		threshold: cfg.OverrideThreshold,
		timeout:   cfg.RunTimeout,
	}
	if err := registry.Warm(decisionProgram, p.options()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) options() sandbox.Options {
	return sandbox.Options{
		TypeCheck: true,
		Stubs:     decisionStubs,
		Timeout:   p.timeout,
	}
}

// Threshold returns the configured override threshold.
func (p *Policy) Threshold() float64 {
	return p.threshold
}

// Evaluate decides whether one story requires human override.
func (p *Policy) Evaluate(ctx context.Context, req Request) (*domain.OverrideDecision, error) {
	out, err := p.registry.Run(ctx, decisionProgram, map[string]any{
		"story_id":           req.StoryID,
		"risk_score":         req.RiskScore,
		"pattern_type":       req.PatternType,
		"override_threshold": p.threshold,
	}, p.options())
	if err != nil {
		return nil, err
	}

	result, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decision program returned %T, want map", out)
	}

	decision := &domain.OverrideDecision{
		StoryID:          req.StoryID,
		RequiresOverride: result["requires_override"] == true,
		RiskScore:        req.RiskScore,
	}
	if s, ok := result["reason"].(string); ok {
		decision.Reason = s
	}
	if s, ok := result["recommendation"].(string); ok {
		decision.Recommendation = s
	}

	if decision.RequiresOverride {
		slog.Warn("override required",
			"story_id", req.StoryID,
			"risk_score", req.RiskScore,
			"reason", decision.Reason)
	}

	return decision, nil
}

// EvaluateBatch evaluates each request independently. A failed item is
// logged and skipped; it never aborts the rest of the batch.
func (p *Policy) EvaluateBatch(ctx context.Context, reqs []Request) []domain.OverrideDecision {
	decisions := make([]domain.OverrideDecision, 0, len(reqs))
	for _, req := range reqs {
		d, err := p.Evaluate(ctx, req)
		if err != nil {
			slog.Error("override evaluation failed",
				"story_id", req.StoryID,
				"error", err)
			continue
		}
		decisions = append(decisions, *d)
	}
	return decisions
}
