// Package ambiguity flags stories whose titles invite multiple
// interpretations: clickbait phrasing, question marks, caps-heavy text, or
// controversy-level comment volume.
package ambiguity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/cel-go/cel"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/sandbox"
)

// clickbaitPhrases is the fixed phrase list checked case-insensitively
// against titles. Each hit adds 0.3 to the score.
var clickbaitPhrases = []string{
	"shocking",
	"you won't believe",
	"this one",
	"unbelievable",
}

// highCommentCount marks comment volume suggesting controversy.
const highCommentCount = 100

// scoreProgram accumulates the ambiguity score from the precomputed title
// facts and clamps it to 1. All-caps and caps-heavy are mutually exclusive
// contributions.
const scoreProgram = `
math.least(1.0,
  double(clickbait_hits) * 0.3
    + (has_question ? 0.2 : 0.0)
    + (all_caps ? 0.15 : (caps_heavy ? 0.1 : 0.0))
    + (high_comments ? 0.1 : 0.0))`

var scoreStubs = map[string]*cel.Type{
	"clickbait_hits": cel.IntType,
	"has_question":   cel.BoolType,
	"all_caps":       cel.BoolType,
	"caps_heavy":     cel.BoolType,
	"high_comments":  cel.BoolType,
}

// Detector scores title ambiguity and emits flags at or above the
// configured threshold.
type Detector struct {
	registry  *sandbox.Registry
	threshold float64
	timeout   time.Duration
}

// NewDetector creates an ambiguity detector and compiles its scoring
// program.
func NewDetector(registry *sandbox.Registry, cfg domain.ScoringConfig) (*Detector, error) {
	d := &Detector{
		registry:  registry,
		threshold: cfg.AmbiguityThreshold,
		timeout:   cfg.RunTimeout,
	}
	if err := registry.Warm(scoreProgram, d.options()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detector) options() sandbox.Options {
	return sandbox.Options{
		TypeCheck: true,
		Stubs:     scoreStubs,
		Timeout:   d.timeout,
	}
}

// Analyze scores one story title and returns a flag if the score meets the
// threshold, or nil when the story is unambiguous.
func (d *Detector) Analyze(ctx context.Context, storyID, title string, commentCount int) (*domain.AmbiguityFlag, error) {
	score, err := d.Score(ctx, title, commentCount)
	if err != nil {
		return nil, err
	}
	if score < d.threshold {
		return nil, nil
	}

	flag := &domain.AmbiguityFlag{
		StoryID:        storyID,
		Title:          title,
		AmbiguityScore: score,
		Reason:         reason(title, score),
	}

	slog.Info("ambiguity detected",
		"story_id", storyID,
		"score", score,
		"reason", flag.Reason)

	return flag, nil
}

// Score computes the raw ambiguity score in [0,1] without applying the
// threshold.
func (d *Detector) Score(ctx context.Context, title string, commentCount int) (float64, error) {
	out, err := d.registry.Run(ctx, scoreProgram, map[string]any{
		"clickbait_hits": int64(clickbaitHits(title)),
		"has_question":   strings.Contains(title, "?"),
		"all_caps":       isAllUpper(title),
		"caps_heavy":     isCapsHeavy(title),
		"high_comments":  commentCount > highCommentCount,
	}, d.options())
	if err != nil {
		return 0, err
	}
	score, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("ambiguity program returned %T, want float64", out)
	}
	return score, nil
}

// reason explains a flag. First matching cause wins: question mark, then
// all caps, then clickbait phrasing, then the bare score.
func reason(title string, score float64) string {
	switch {
	case strings.Contains(title, "?"):
		return "Title contains question mark (potential ambiguity)"
	case isAllUpper(title):
		return "Title in all caps (possible sensationalism)"
	case clickbaitHits(title) > 0:
		return "Title contains clickbait indicators"
	default:
		return fmt.Sprintf("High ambiguity score (%.2f)", score)
	}
}

func clickbaitHits(title string) int {
	lower := strings.ToLower(title)
	hits := 0
	for _, phrase := range clickbaitPhrases {
		if strings.Contains(lower, phrase) {
			hits++
		}
	}
	return hits
}

// isAllUpper reports whether the title has at least one letter and no
// lower-case letters.
func isAllUpper(title string) bool {
	hasLetter := false
	for _, r := range title {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// isCapsHeavy reports whether more than 40% of all characters are
// upper-case.
func isCapsHeavy(title string) bool {
	if title == "" {
		return false
	}
	total := 0
	upper := 0
	for _, r := range title {
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) > float64(total)*0.4
}
