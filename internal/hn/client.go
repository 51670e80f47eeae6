// Package hn is a client for the Hacker News Firebase API
// (https://hacker-news.firebaseio.com/v0). Responses are cached and
// requests are rate limited to one per second to stay a polite citizen.
package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agentic-news/reaper/internal/domain"
)

const (
	defaultBaseURL = "https://hacker-news.firebaseio.com/v0"

	// batchConcurrency bounds parallel item fetches. The rate limiter is
	// the real throttle; this just caps in-flight requests.
	batchConcurrency = 10

	defaultMaxCommentDepth = 3
)

// Comment is a story comment with nested replies.
type Comment struct {
	ID      int64     `json:"id"`
	Author  string    `json:"author,omitempty"`
	Text    string    `json:"text,omitempty"`
	Created time.Time `json:"created"`
	Replies []Comment `json:"replies,omitempty"`
}

// item is the wire shape of a HN item.
type item struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Text        string  `json:"text"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Time        int64   `json:"time"`
	Kids        []int64 `json:"kids"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
}

// Client fetches stories and comments from the HN API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   domain.Cache
	ttl     time.Duration
}

// NewClient creates a HN API client. cache may be nil to disable response
// caching.
func NewClient(cfg domain.HackerNewsConfig, cache domain.Cache) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ttl := time.Duration(cfg.CacheTTLHours) * time.Hour
	if ttl == 0 {
		ttl = time.Hour
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		cache:   cache,
		ttl:     ttl,
	}
}

// TopStories returns up to count IDs from the top stories feed.
func (c *Client) TopStories(ctx context.Context, count int) ([]int64, error) {
	data, err := c.fetch(ctx, "/topstories.json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top stories: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode top stories: %w", err)
	}

	if count > 0 && len(ids) > count {
		ids = ids[:count]
	}
	return ids, nil
}

// Story fetches a single story. Returns nil, nil when the item does not
// exist or is deleted.
func (c *Client) Story(ctx context.Context, id int64) (*domain.Story, error) {
	it, err := c.item(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil || it.Deleted || it.Dead {
		return nil, nil
	}

	return &domain.Story{
		ID:          strconv.FormatInt(it.ID, 10),
		Title:       it.Title,
		URL:         it.URL,
		Author:      it.By,
		Score:       it.Score,
		Descendants: it.Descendants,
		CreatedAt:   time.Unix(it.Time, 0).UTC(),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// StoriesBatch fetches many stories concurrently, preserving input order.
// Missing or deleted items are skipped.
func (c *Client) StoriesBatch(ctx context.Context, ids []int64) ([]*domain.Story, error) {
	results := make([]*domain.Story, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			story, err := c.Story(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch story %d: %w", id, err)
			}
			results[i] = story
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stories := make([]*domain.Story, 0, len(results))
	for _, story := range results {
		if story != nil {
			stories = append(stories, story)
		}
	}
	return stories, nil
}

// Comments fetches a story's comment tree down to maxDepth levels.
func (c *Client) Comments(ctx context.Context, storyID int64, maxDepth int) ([]Comment, error) {
	if maxDepth <= 0 {
		maxDepth = defaultMaxCommentDepth
	}

	it, err := c.item(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if it == nil || len(it.Kids) == 0 {
		return nil, nil
	}

	return c.fetchComments(ctx, it.Kids, maxDepth, 0)
}

func (c *Client) fetchComments(ctx context.Context, ids []int64, maxDepth, depth int) ([]Comment, error) {
	var comments []Comment
	for _, id := range ids {
		it, err := c.item(ctx, id)
		if err != nil {
			return nil, err
		}
		if it == nil || it.Deleted || it.Dead {
			continue
		}

		comment := Comment{
			ID:      it.ID,
			Author:  it.By,
			Text:    it.Text,
			Created: time.Unix(it.Time, 0).UTC(),
		}

		if len(it.Kids) > 0 && depth+1 < maxDepth {
			replies, err := c.fetchComments(ctx, it.Kids, maxDepth, depth+1)
			if err != nil {
				return nil, err
			}
			comment.Replies = replies
		}

		comments = append(comments, comment)
	}
	return comments, nil
}

func (c *Client) item(ctx context.Context, id int64) (*item, error) {
	data, err := c.fetch(ctx, fmt.Sprintf("/item/%d.json", id))
	if err != nil {
		return nil, err
	}
	// The API returns literal null for unknown items.
	if data == nil || string(data) == "null" {
		return nil, nil
	}

	var it item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("failed to decode item %d: %w", id, err)
	}
	return &it, nil
}

// fetch performs a rate-limited GET with response caching. A 404 returns
// nil, nil.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	cacheKey := "hn:" + path

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			return cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, data, c.ttl); err != nil {
			slog.Warn("failed to cache API response", "path", path, "error", err)
		}
	}

	return data, nil
}
