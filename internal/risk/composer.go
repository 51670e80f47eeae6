// Package risk composes engagement, spam, and sentiment sub-risks into a
// single failure mode per pattern instance.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/sandbox"
)

// engagementProgram interpolates risk from comment count: 0 at or above the
// low-engagement threshold, rising linearly to 1 as the count reaches 0.
const engagementProgram = `
comment_count >= threshold
  ? 0.0
  : math.greatest(0.0, 1.0 - double(comment_count) / double(threshold))`

// clampProgram bounds a raw sub-risk input to [0,1].
const clampProgram = `math.least(1.0, math.greatest(0.0, value))`

// compositeProgram combines the three sub-risks with configured weights and
// clamps the sum rather than renormalizing it.
const compositeProgram = `
math.least(1.0, math.greatest(0.0,
  engagement_risk * w_engagement
    + spam_risk * w_spam
    + sentiment_drift * w_sentiment))`

var (
	engagementStubs = map[string]*cel.Type{
		"comment_count": cel.IntType,
		"threshold":     cel.IntType,
	}
	clampStubs = map[string]*cel.Type{
		"value": cel.DoubleType,
	}
	compositeStubs = map[string]*cel.Type{
		"engagement_risk": cel.DoubleType,
		"spam_risk":       cel.DoubleType,
		"sentiment_drift": cel.DoubleType,
		"w_engagement":    cel.DoubleType,
		"w_spam":          cel.DoubleType,
		"w_sentiment":     cel.DoubleType,
	}
)

// Mitigation trigger thresholds.
const (
	watchlistEngagementRisk = 0.7
	deferSentimentDrift     = 0.8
)

// Reporting thresholds for the reason string.
const (
	reportEngagementRisk = 0.7
	reportSpamRisk       = 0.6
	reportSentimentDrift = 0.7
)

// Composer turns a pattern instance's raw signals into a FailureMode.
type Composer struct {
	registry *sandbox.Registry
	cfg      domain.ScoringConfig
}

// NewComposer creates a risk composer and compiles its scoring programs up
// front.
func NewComposer(registry *sandbox.Registry, cfg domain.ScoringConfig) (*Composer, error) {
	c := &Composer{registry: registry, cfg: cfg}
	for _, p := range []struct {
		src   string
		stubs map[string]*cel.Type
	}{
		{engagementProgram, engagementStubs},
		{clampProgram, clampStubs},
		{compositeProgram, compositeStubs},
	} {
		if err := registry.Warm(p.src, c.options(p.stubs)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Composer) options(stubs map[string]*cel.Type) sandbox.Options {
	return sandbox.Options{
		TypeCheck: true,
		Stubs:     stubs,
		Timeout:   c.cfg.RunTimeout,
	}
}

// Compose computes the failure mode for one pattern instance from the
// story's comment count, spam score, and sentiment variance.
func (c *Composer) Compose(ctx context.Context, instanceID string, commentCount int, spamScore, sentimentVariance float64) (*domain.FailureMode, error) {
	engagementRisk, err := c.engagementRisk(ctx, commentCount)
	if err != nil {
		return nil, err
	}
	spamRisk, err := c.clamp(ctx, spamScore)
	if err != nil {
		return nil, err
	}
	sentimentDrift, err := c.clamp(ctx, sentimentVariance)
	if err != nil {
		return nil, err
	}

	riskScore, err := c.composite(ctx, engagementRisk, spamRisk, sentimentDrift)
	if err != nil {
		return nil, err
	}

	mode := &domain.FailureMode{
		PatternInstanceID: instanceID,
		RiskScore:         riskScore,
		EngagementRisk:    engagementRisk,
		SpamRisk:          spamRisk,
		SentimentDrift:    sentimentDrift,
		Mitigation:        mitigation(engagementRisk, spamRisk, sentimentDrift, c.cfg.HighSpamThreshold),
		Reason:            reason(engagementRisk, spamRisk, sentimentDrift, commentCount),
	}

	slog.Info("pattern risk composed",
		"pattern_instance_id", instanceID,
		"risk_score", riskScore,
		"engagement_risk", engagementRisk,
		"spam_risk", spamRisk,
		"sentiment_drift", sentimentDrift)

	return mode, nil
}

func (c *Composer) engagementRisk(ctx context.Context, commentCount int) (float64, error) {
	threshold := c.cfg.LowEngagementThreshold
	if threshold <= 0 {
		return 0.0, nil
	}
	out, err := c.registry.Run(ctx, engagementProgram, map[string]any{
		"comment_count": int64(commentCount),
		"threshold":     int64(threshold),
	}, c.options(engagementStubs))
	if err != nil {
		return 0, err
	}
	return asFloat(out)
}

func (c *Composer) clamp(ctx context.Context, value float64) (float64, error) {
	out, err := c.registry.Run(ctx, clampProgram, map[string]any{
		"value": value,
	}, c.options(clampStubs))
	if err != nil {
		return 0, err
	}
	return asFloat(out)
}

func (c *Composer) composite(ctx context.Context, engagementRisk, spamRisk, sentimentDrift float64) (float64, error) {
	out, err := c.registry.Run(ctx, compositeProgram, map[string]any{
		"engagement_risk": engagementRisk,
		"spam_risk":       spamRisk,
		"sentiment_drift": sentimentDrift,
		"w_engagement":    c.cfg.EngagementWeight,
		"w_spam":          c.cfg.SpamWeight,
		"w_sentiment":     c.cfg.SentimentWeight,
	}, c.options(compositeStubs))
	if err != nil {
		return 0, err
	}
	return asFloat(out)
}

// mitigation joins the triggered action tags with ";" or returns the no-op
// tag when nothing triggered.
func mitigation(engagementRisk, spamRisk, sentimentDrift, highSpamThreshold float64) string {
	var actions []string
	if engagementRisk > watchlistEngagementRisk {
		actions = append(actions, domain.MitigationWatchlist)
	}
	if spamRisk > highSpamThreshold {
		actions = append(actions, domain.MitigationReview)
	}
	if sentimentDrift > deferSentimentDrift {
		actions = append(actions, domain.MitigationDefer)
	}
	if len(actions) == 0 {
		return domain.MitigationProceed
	}
	return strings.Join(actions, ";")
}

// reason lists the sub-risks crossing their reporting thresholds, always in
// engagement, spam, sentiment order.
func reason(engagementRisk, spamRisk, sentimentDrift float64, commentCount int) string {
	var parts []string
	if engagementRisk > reportEngagementRisk {
		parts = append(parts, fmt.Sprintf("low engagement (%d comments)", commentCount))
	}
	if spamRisk > reportSpamRisk {
		parts = append(parts, fmt.Sprintf("spam risk (%.2f)", spamRisk))
	}
	if sentimentDrift > reportSentimentDrift {
		parts = append(parts, fmt.Sprintf("high sentiment variance (%.2f)", sentimentDrift))
	}
	if len(parts) == 0 {
		return "Low overall risk"
	}
	return strings.Join(parts, "; ")
}

func asFloat(out any) (float64, error) {
	f, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("scoring program returned %T, want float64", out)
	}
	return f, nil
}
