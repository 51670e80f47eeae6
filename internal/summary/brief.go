// Package summary aggregates a week of scoring output into a founder brief.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agentic-news/reaper/internal/domain"
)

// WeeklySummary is the aggregated view of one week of pipeline output.
type WeeklySummary struct {
	WeekStart time.Time `json:"weekStart"`
	WeekEnd   time.Time `json:"weekEnd"`

	StoriesFlagged    int `json:"storiesFlagged"`
	PatternsDetected  int `json:"patternsDetected"`
	OverridesRequired int `json:"overridesRequired"`

	AvgConfidence float64 `json:"avgConfidence"`
	MaxRiskScore  float64 `json:"maxRiskScore"`

	TopPatterns []PatternCount `json:"topPatterns,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// PatternCount is a pattern template with its detection count for the week.
type PatternCount struct {
	PatternID string `json:"patternId"`
	Count     int    `json:"count"`
}

// Generator builds and persists weekly summaries.
type Generator struct {
	repo domain.Repository
}

// NewGenerator creates a summary generator.
func NewGenerator(repo domain.Repository) *Generator {
	return &Generator{repo: repo}
}

// WeekStart normalizes t to the preceding Monday at 00:00 UTC.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// Generate aggregates all flags, pattern instances, and override decisions
// recorded since weekStart, persists the result, and returns it.
func (g *Generator) Generate(ctx context.Context, weekStart time.Time) (*WeeklySummary, error) {
	weekStart = WeekStart(weekStart)

	flags, err := g.repo.ListFlagsSince(ctx, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list ambiguity flags: %w", err)
	}

	instances, err := g.repo.ListInstancesSince(ctx, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern instances: %w", err)
	}

	overrides, err := g.repo.ListOverridesSince(ctx, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list override decisions: %w", err)
	}

	s := &WeeklySummary{
		WeekStart:        weekStart,
		WeekEnd:          weekStart.AddDate(0, 0, 7),
		StoriesFlagged:   len(flags),
		PatternsDetected: len(instances),
		GeneratedAt:      time.Now().UTC(),
	}

	counts := make(map[string]int)
	confidenceSum := 0.0
	for _, inst := range instances {
		counts[inst.PatternID]++
		confidenceSum += inst.Confidence
	}
	if len(instances) > 0 {
		s.AvgConfidence = confidenceSum / float64(len(instances))
	}
	s.TopPatterns = topPatterns(counts, 5)

	for _, d := range overrides {
		if d.RequiresOverride {
			s.OverridesRequired++
		}
		if d.RiskScore > s.MaxRiskScore {
			s.MaxRiskScore = d.RiskScore
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := g.repo.SaveWeeklySummary(ctx, weekStart, data); err != nil {
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}

	slog.Info("weekly summary generated",
		"week_start", weekStart.Format("2006-01-02"),
		"stories_flagged", s.StoriesFlagged,
		"patterns_detected", s.PatternsDetected,
		"overrides_required", s.OverridesRequired)

	return s, nil
}

// Load retrieves a previously generated summary.
func (g *Generator) Load(ctx context.Context, weekStart time.Time) (*WeeklySummary, error) {
	data, err := g.repo.GetWeeklySummary(ctx, WeekStart(weekStart))
	if err != nil {
		return nil, err
	}
	var s WeeklySummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse stored summary: %w", err)
	}
	return &s, nil
}

// Render formats the summary as a plain-text brief.
func Render(s *WeeklySummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Weekly Brief: %s to %s\n",
		s.WeekStart.Format("2006-01-02"),
		s.WeekEnd.Format("2006-01-02"))
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "Stories flagged for ambiguity: %d\n", s.StoriesFlagged)
	fmt.Fprintf(&b, "Patterns detected:             %d\n", s.PatternsDetected)
	fmt.Fprintf(&b, "Human overrides required:      %d\n", s.OverridesRequired)
	fmt.Fprintf(&b, "Average match confidence:      %.2f\n", s.AvgConfidence)
	fmt.Fprintf(&b, "Peak risk score:               %.2f\n", s.MaxRiskScore)

	if len(s.TopPatterns) > 0 {
		b.WriteString("\nMost frequent patterns:\n")
		for _, p := range s.TopPatterns {
			fmt.Fprintf(&b, "  %-32s %d\n", p.PatternID, p.Count)
		}
	}

	return b.String()
}

func topPatterns(counts map[string]int, limit int) []PatternCount {
	out := make([]PatternCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, PatternCount{PatternID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].PatternID < out[j].PatternID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
