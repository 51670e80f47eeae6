package domain

import (
	"time"
)

// StoryEvaluation is the complete scoring result for one story: the
// ambiguity flag (if any), every matched pattern instance with its failure
// mode and override decision, and processing metadata.
type StoryEvaluation struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"storyId"`
	Timestamp time.Time `json:"timestamp"`

	Ambiguity *AmbiguityFlag     `json:"ambiguity,omitempty"`
	Patterns  []PatternInstance  `json:"patterns,omitempty"`
	Failures  []FailureMode      `json:"failures,omitempty"`
	Overrides []OverrideDecision `json:"overrides,omitempty"`

	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information for audit trails.
type EvaluationMetadata struct {
	TraceID          string `json:"traceId"`
	AmbiguityMs      int64  `json:"ambiguityMs"`
	PatternsMs       int64  `json:"patternsMs"`
	RiskMs           int64  `json:"riskMs"`
	TotalMs          int64  `json:"totalMs"`
	TemplatesChecked int    `json:"templatesChecked"`
	PatternsMatched  int    `json:"patternsMatched"`
	EngineVersion    string `json:"engineVersion"`
}

// RequiresHumanReview reports whether any override decision in the
// evaluation demands human approval.
func (e *StoryEvaluation) RequiresHumanReview() bool {
	for _, d := range e.Overrides {
		if d.RequiresOverride {
			return true
		}
	}
	return false
}

// MaxRiskScore returns the highest composite risk across all failure modes,
// or 0 when no pattern matched.
func (e *StoryEvaluation) MaxRiskScore() float64 {
	max := 0.0
	for _, f := range e.Failures {
		if f.RiskScore > max {
			max = f.RiskScore
		}
	}
	return max
}
