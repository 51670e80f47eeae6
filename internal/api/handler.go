package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/pipeline"
	"github.com/agentic-news/reaper/internal/repository"
	"github.com/agentic-news/reaper/internal/summary"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	pipeline *pipeline.Pipeline
	briefs   *summary.Generator

	patternsFile string
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, p *pipeline.Pipeline, briefs *summary.Generator, patternsFile, version string) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		pipeline:     p,
		briefs:       briefs,
		patternsFile: patternsFile,
		version:      version,
	}
}

// ScoreRequest is the request body for POST /score. Analytic signals default
// to zero when omitted.
type ScoreRequest struct {
	StoryID string `json:"storyId"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`

	CommentCount      int     `json:"commentCount"`
	Score             int     `json:"score"`
	UpvoteRatio       float64 `json:"upvoteRatio,omitempty"`
	SentimentVariance float64 `json:"sentimentVariance,omitempty"`
	SpamScore         float64 `json:"spamScore,omitempty"`
	Blacklisted       bool    `json:"blacklisted,omitempty"`
}

// Score handles POST /score: a synchronous evaluation of one story.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.StoryID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "storyId is required",
		})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "title is required",
		})
		return
	}
	if req.CommentCount < 0 || req.Score < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "commentCount and score must be non-negative",
		})
		return
	}

	bundle := &domain.SignalBundle{
		StoryID:           req.StoryID,
		Title:             req.Title,
		URL:               req.URL,
		CommentCount:      req.CommentCount,
		Score:             req.Score,
		UpvoteRatio:       req.UpvoteRatio,
		SentimentVariance: req.SentimentVariance,
		SpamScore:         req.SpamScore,
		Blacklisted:       req.Blacklisted,
	}

	eval, err := h.pipeline.ProcessStory(ctx, bundle)
	if err != nil {
		slog.Error("story scoring failed", "story_id", req.StoryID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	evalID := chi.URLParam(r, "id")

	if evalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evaluation id is required",
		})
		return
	}

	eval, err := h.repo.GetEvaluation(ctx, evalID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get evaluation", "id", evalID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "evaluation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// GetStory retrieves a raw story by ID.
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := chi.URLParam(r, "id")

	if storyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "story id is required",
		})
		return
	}

	story, err := h.repo.GetStory(ctx, storyID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get story", "id", storyID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "story not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, story)
}

// ListPatterns returns all loaded pattern templates.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	templates := h.pipeline.Engine().Templates()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": templates,
		"count":    len(templates),
	})
}

// GetPattern retrieves a pattern template by ID.
func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	patternID := chi.URLParam(r, "id")

	if patternID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pattern id is required",
		})
		return
	}

	for _, tpl := range h.pipeline.Engine().Templates() {
		if tpl.ID == patternID {
			writeJSON(w, http.StatusOK, tpl)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "pattern not found",
	})
}

// ReloadPatterns re-reads the template file and swaps the loaded set.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadPatterns(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Engine().LoadFile(h.patternsFile); err != nil {
		slog.Error("failed to reload pattern templates", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to reload patterns: " + err.Error(),
		})
		return
	}

	count := h.pipeline.Engine().TemplateCount()
	slog.Info("patterns reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "patterns reloaded successfully",
		"count":   count,
	})
}

// Run triggers the daily batch synchronously.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Run(r.Context()); err != nil {
		slog.Error("batch run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch run failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "batch completed",
	})
}

// GetBrief returns the weekly summary for the week containing the given
// date, generating it on demand when none is stored.
func (h *Handler) GetBrief(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at := time.Now().UTC()
	if week := r.URL.Query().Get("week"); week != "" {
		parsed, err := time.Parse("2006-01-02", week)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "week must be YYYY-MM-DD",
			})
			return
		}
		at = parsed
	}

	s, err := h.briefs.Load(ctx, at)
	if errors.Is(err, repository.ErrNotFound) {
		s, err = h.briefs.Generate(ctx, at)
	}
	if err != nil {
		slog.Error("failed to build weekly brief", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build weekly brief",
		})
		return
	}

	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
