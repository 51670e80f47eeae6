package domain

import "time"

// PatternTemplate is a declarative rule describing trigger conditions and
// signal weights used to recognize a behavioral pattern in a story.
// Templates are immutable once loaded; the loaded set is replaced wholesale
// on reload, never mutated in place.
type PatternTemplate struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`

	// RiskLevel is an enum-like label: "low", "medium", "high".
	RiskLevel string `json:"riskLevel" yaml:"risk_level"`

	TriggerConditions TriggerConditions  `json:"triggerConditions" yaml:"trigger_conditions"`
	ConfidenceWeights map[string]float64 `json:"confidenceWeights" yaml:"confidence_weights"`
}

// TriggerConditions holds the per-signal thresholds and keyword lists
// evaluated against a story. Pointer fields distinguish "not configured"
// from a configured zero.
type TriggerConditions struct {
	TitleContains     []string `json:"titleContains,omitempty" yaml:"title_contains"`
	URLContains       []string `json:"urlContains,omitempty" yaml:"url_contains"`
	URLDomainPatterns []string `json:"urlDomainPatterns,omitempty" yaml:"url_domain_patterns"`

	MinComments int `json:"minComments,omitempty" yaml:"min_comments"`
	MinScore    int `json:"minScore,omitempty" yaml:"min_score"`

	CommentUpvoteRatio       *float64 `json:"commentUpvoteRatio,omitempty" yaml:"comment_upvote_ratio"`
	CommentSentimentVariance *float64 `json:"commentSentimentVariance,omitempty" yaml:"comment_sentiment_variance"`

	URLOnBlacklist bool `json:"urlOnBlacklist,omitempty" yaml:"url_on_blacklist"`
}

// Signal names used as keys in ConfidenceWeights.
const (
	SignalTitleMatch     = "title_match"
	SignalURLMatch       = "url_match"
	SignalURLDomainMatch = "url_domain_match"
	SignalEngagement     = "engagement"
	SignalUpvoteRatio    = "upvote_ratio"
	SignalScore          = "score"
	SignalSentiment      = "sentiment"
	SignalSpam           = "spam"
)

// Pattern risk levels.
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// PatternInstance is a detected pattern: the output of a successful match.
// Instances are value objects, created once and never mutated.
type PatternInstance struct {
	ID         string  `json:"id"`
	PatternID  string  `json:"patternId"`
	StoryID    string  `json:"storyId"`
	Confidence float64 `json:"confidence"`

	// PatternData is a descriptive snapshot taken at match time.
	PatternData PatternData `json:"patternData"`

	CreatedAt time.Time `json:"createdAt"`
}

// PatternData snapshots the matched story and template description so the
// instance remains interpretable after a template reload.
type PatternData struct {
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Description string `json:"patternDescription"`
	RiskLevel   string `json:"riskLevel"`
}
