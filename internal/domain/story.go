// Package domain defines the core interfaces and types for Reaper.
package domain

import (
	"time"
)

// Story is a raw social-news item as fetched from the upstream API.
type Story struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	Author string `json:"author,omitempty"`

	// Score is the story's upstream vote score.
	Score int `json:"score"`

	// Descendants is the total comment count reported by the API.
	Descendants int `json:"descendants"`

	CreatedAt time.Time `json:"createdAt"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// SignalBundle carries the per-evaluation inputs for one story.
// All analytic signals (sentiment variance, spam score, upvote ratio) are
// precomputed by the caller; the scoring core performs no text analytics
// beyond literal title/URL string checks.
type SignalBundle struct {
	StoryID string `json:"storyId"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`

	CommentCount      int     `json:"commentCount"`
	Score             int     `json:"score"`
	UpvoteRatio       float64 `json:"upvoteRatio"`
	SentimentVariance float64 `json:"sentimentVariance"`
	SpamScore         float64 `json:"spamScore"`
	Blacklisted       bool    `json:"blacklisted"`

	// Extra holds caller-supplied signals not modeled above.
	Extra map[string]any `json:"extra,omitempty"`
}
