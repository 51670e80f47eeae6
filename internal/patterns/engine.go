package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/sandbox"
)

// confidenceProgram computes the weighted average of the eight signal
// indicators. The denominator counts only the weights a template actually
// configured; unconfigured signals carry weight 0 and contribute nothing to
// either sum. A template with no weights at all scores exactly 0.
const confidenceProgram = `
cel.bind(denom,
  w_title_match + w_url_match + w_url_domain_match + w_engagement
    + w_upvote_ratio + w_score + w_sentiment + w_spam,
  denom == 0.0
    ? 0.0
    : math.least(1.0, math.greatest(0.0,
        (title_match * w_title_match
          + url_match * w_url_match
          + url_domain_match * w_url_domain_match
          + engagement * w_engagement
          + upvote_ratio * w_upvote_ratio
          + score * w_score
          + sentiment * w_sentiment
          + spam * w_spam) / denom)))`

var signalNames = []string{
	domain.SignalTitleMatch,
	domain.SignalURLMatch,
	domain.SignalURLDomainMatch,
	domain.SignalEngagement,
	domain.SignalUpvoteRatio,
	domain.SignalScore,
	domain.SignalSentiment,
	domain.SignalSpam,
}

var confidenceStubs = func() map[string]*cel.Type {
	stubs := make(map[string]*cel.Type, 2*len(signalNames))
	for _, name := range signalNames {
		stubs[name] = cel.DoubleType
		stubs["w_"+name] = cel.DoubleType
	}
	return stubs
}()

// Engine matches pattern templates against story signal bundles. The loaded
// template set is an immutable snapshot swapped wholesale on reload; an
// in-flight Match keeps scoring against the snapshot it started with.
type Engine struct {
	registry      *sandbox.Registry
	minConfidence float64
	runTimeout    time.Duration

	mu        sync.RWMutex
	templates []*domain.PatternTemplate
}

// NewEngine creates a pattern engine and compiles the confidence program up
// front so a defective program fails at startup, not mid-batch.
func NewEngine(registry *sandbox.Registry, cfg domain.ScoringConfig) (*Engine, error) {
	e := &Engine{
		registry:      registry,
		minConfidence: cfg.MinConfidence,
		runTimeout:    cfg.RunTimeout,
	}
	if err := registry.Warm(confidenceProgram, e.sandboxOptions()); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) sandboxOptions() sandbox.Options {
	return sandbox.Options{
		TypeCheck: true,
		Stubs:     confidenceStubs,
		Timeout:   e.runTimeout,
	}
}

// Load replaces the template set wholesale. Readers never observe a
// partially loaded set.
func (e *Engine) Load(templates []*domain.PatternTemplate) {
	snapshot := make([]*domain.PatternTemplate, len(templates))
	copy(snapshot, templates)

	e.mu.Lock()
	e.templates = snapshot
	e.mu.Unlock()

	slog.Info("pattern templates loaded", "count", len(snapshot))
}

// LoadFile loads templates from a YAML file and swaps them in. A missing
// file installs an empty set; malformed content leaves the current set
// untouched and returns the parse error.
func (e *Engine) LoadFile(path string) error {
	templates, err := LoadTemplates(path)
	if err != nil {
		return err
	}
	e.Load(templates)
	return nil
}

// Templates returns the current template snapshot.
func (e *Engine) Templates() []*domain.PatternTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.templates
}

// TemplateCount returns the number of loaded templates.
func (e *Engine) TemplateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.templates)
}

// Match evaluates every loaded template against the bundle and returns the
// instances whose confidence meets the minimum, sorted by confidence
// descending. Ties keep the templates' file order. A template whose
// evaluation fails is logged and skipped; it never aborts the rest.
func (e *Engine) Match(ctx context.Context, bundle *domain.SignalBundle) []domain.PatternInstance {
	e.mu.RLock()
	templates := e.templates
	e.mu.RUnlock()

	var instances []domain.PatternInstance
	for _, tpl := range templates {
		confidence, err := e.confidence(ctx, tpl, bundle)
		if err != nil {
			slog.Error("pattern evaluation failed",
				"pattern_id", tpl.ID,
				"story_id", bundle.StoryID,
				"error", err)
			continue
		}
		if confidence < e.minConfidence {
			continue
		}

		instances = append(instances, domain.PatternInstance{
			ID:         uuid.NewString(),
			PatternID:  tpl.ID,
			StoryID:    bundle.StoryID,
			Confidence: confidence,
			PatternData: domain.PatternData{
				Title:       bundle.Title,
				URL:         bundle.URL,
				Description: tpl.Description,
				RiskLevel:   tpl.RiskLevel,
			},
			CreatedAt: time.Now().UTC(),
		})
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].Confidence > instances[j].Confidence
	})
	return instances
}

// confidence computes the indicator vector for one template and runs the
// weighted average through the sandbox.
func (e *Engine) confidence(ctx context.Context, tpl *domain.PatternTemplate, bundle *domain.SignalBundle) (float64, error) {
	signals := signalValues(tpl.TriggerConditions, bundle)

	inputs := make(map[string]any, 2*len(signalNames))
	for _, name := range signalNames {
		inputs[name] = signals[name]
		inputs["w_"+name] = tpl.ConfidenceWeights[name]
	}

	out, err := e.registry.Run(ctx, confidenceProgram, inputs, e.sandboxOptions())
	if err != nil {
		return 0, err
	}
	confidence, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("confidence program returned %T, want float64", out)
	}
	return confidence, nil
}

// signalValues computes the eight indicator values in [0,1] for one
// template's trigger conditions.
func signalValues(cond domain.TriggerConditions, bundle *domain.SignalBundle) map[string]float64 {
	title := strings.ToLower(bundle.Title)
	url := strings.ToLower(bundle.URL)

	v := map[string]float64{
		domain.SignalTitleMatch:     keywordFraction(title, cond.TitleContains),
		domain.SignalURLMatch:       keywordFraction(url, cond.URLContains),
		domain.SignalURLDomainMatch: keywordFraction(url, cond.URLDomainPatterns),
	}

	v[domain.SignalEngagement] = boolSignal(bundle.CommentCount >= cond.MinComments)
	v[domain.SignalScore] = boolSignal(bundle.Score >= cond.MinScore)

	if cond.CommentUpvoteRatio != nil {
		v[domain.SignalUpvoteRatio] = boolSignal(bundle.UpvoteRatio >= *cond.CommentUpvoteRatio)
	} else {
		v[domain.SignalUpvoteRatio] = 0.0
	}

	// A configured target of exactly 0 scores 0 rather than dividing by it.
	if cond.CommentSentimentVariance != nil && *cond.CommentSentimentVariance != 0 {
		v[domain.SignalSentiment] = math.Min(1.0, bundle.SentimentVariance / *cond.CommentSentimentVariance)
	} else {
		v[domain.SignalSentiment] = 0.0
	}

	v[domain.SignalSpam] = boolSignal(cond.URLOnBlacklist)

	return v
}

// keywordFraction returns the fraction of keywords found as case-insensitive
// substrings of text, or 0 for an empty list. text must already be
// lower-cased.
func keywordFraction(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0.0
	}
	found := 0
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

func boolSignal(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
