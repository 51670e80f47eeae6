package domain

// FailureMode is a predicted failure mode for a pattern instance: the
// composite risk score, its three sub-risk components, and the recommended
// mitigation. One-to-one with a PatternInstance.
type FailureMode struct {
	PatternInstanceID string  `json:"patternInstanceId"`
	RiskScore         float64 `json:"riskScore"`

	EngagementRisk float64 `json:"engagementRisk"`
	SpamRisk       float64 `json:"spamRisk"`
	SentimentDrift float64 `json:"sentimentDrift"`

	// Mitigation is a semicolon-joined list of action tags, or
	// MitigationProceed when no mitigation applies.
	Mitigation string `json:"mitigation"`
	Reason     string `json:"reason"`
}

// Mitigation action tags.
const (
	MitigationWatchlist = "add_to_watchlist"
	MitigationReview    = "flag_for_review"
	MitigationDefer     = "auto_defer"
	MitigationProceed   = "proceed_normally"
)
