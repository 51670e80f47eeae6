package domain

// OverrideDecision records whether a human must approve a downstream action
// for a story. RequiresOverride is true iff RiskScore >= the configured
// override threshold (inclusive).
type OverrideDecision struct {
	StoryID          string  `json:"storyId"`
	RequiresOverride bool    `json:"requiresOverride"`
	RiskScore        float64 `json:"riskScore"`
	Reason           string  `json:"reason"`
	Recommendation   string  `json:"recommendation,omitempty"`
}

// Pattern types with dedicated override classifications.
const (
	PatternTypeFinancial = "financial"
	PatternTypeSecurity  = "security"
)

// AmbiguityFlag marks a story whose title scored at or above the ambiguity
// threshold. Flags only exist above threshold; a low score produces no flag.
type AmbiguityFlag struct {
	StoryID        string  `json:"storyId"`
	Title          string  `json:"title"`
	AmbiguityScore float64 `json:"ambiguityScore"`
	Reason         string  `json:"reason"`
}
