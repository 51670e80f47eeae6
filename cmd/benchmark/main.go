// Benchmark tool for testing Reaper against labeled story data.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/stories.csv -url http://localhost:8080
//
// This tool:
//  1. Reads labeled story data (with expected review decisions)
//  2. Sends each story to Reaper for scoring
//  3. Compares Reaper's verdict (review required or not) with the labels
//  4. Calculates precision, recall, F1-score, and the confusion matrix
//
// Expected CSV columns: id, title, comment_count, score, spam_score,
// sentiment_variance, needs_review (0/1).
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledStory represents a row from the input dataset.
type LabeledStory struct {
	ID                string
	Title             string
	CommentCount      int
	Score             int
	SpamScore         float64
	SentimentVariance float64
	NeedsReview       bool
}

// ScoreRequest is the Reaper API request format.
type ScoreRequest struct {
	StoryID           string  `json:"storyId"`
	Title             string  `json:"title"`
	CommentCount      int     `json:"commentCount"`
	Score             int     `json:"score"`
	SpamScore         float64 `json:"spamScore,omitempty"`
	SentimentVariance float64 `json:"sentimentVariance,omitempty"`
}

// ScoreResponse is the subset of the evaluation the benchmark inspects.
type ScoreResponse struct {
	ID        string `json:"id"`
	Overrides []struct {
		RequiresOverride bool    `json:"requiresOverride"`
		RiskScore        float64 `json:"riskScore"`
	} `json:"overrides"`
}

func (r *ScoreResponse) requiresReview() bool {
	for _, d := range r.Overrides {
		if d.RequiresOverride {
			return true
		}
	}
	return false
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Review needed, review required
	FalsePositives int64 // Review not needed, review required
	TrueNegatives  int64 // Review not needed, no review
	FalseNegatives int64 // Review needed, no review (missed!)

	TotalProcessed int64
	TotalErrors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled story CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Reaper base URL")
	limit := flag.Int("limit", 10000, "Maximum stories to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each story result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/stories.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("Reaper benchmark - labeled story scoring")
	fmt.Printf("\nCSV File:   %s\n", *csvPath)
	fmt.Printf("Reaper URL: %s\n", *baseURL)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Limit:      %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Reaper not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Reaper is running:")
		fmt.Println("  go run cmd/reaper/main.go serve")
		os.Exit(1)
	}
	fmt.Println("Reaper is healthy")

	stories, err := readStoriesCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}

	reviewCount := 0
	for _, s := range stories {
		if s.NeedsReview {
			reviewCount++
		}
	}
	fmt.Printf("Loaded %d stories (%d labeled needs_review)\n", len(stories), reviewCount)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(stories, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readStoriesCSV(path string, limit int) ([]LabeledStory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"id", "title", "needs_review"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var stories []LabeledStory
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		s := LabeledStory{
			ID:          record[colIndex["id"]],
			Title:       record[colIndex["title"]],
			NeedsReview: record[colIndex["needs_review"]] == "1",
		}
		if i, ok := colIndex["comment_count"]; ok {
			s.CommentCount, _ = strconv.Atoi(record[i])
		}
		if i, ok := colIndex["score"]; ok {
			s.Score, _ = strconv.Atoi(record[i])
		}
		if i, ok := colIndex["spam_score"]; ok {
			s.SpamScore, _ = strconv.ParseFloat(record[i], 64)
		}
		if i, ok := colIndex["sentiment_variance"]; ok {
			s.SentimentVariance, _ = strconv.ParseFloat(record[i], 64)
		}

		stories = append(stories, s)
		if limit > 0 && len(stories) >= limit {
			break
		}
	}

	return stories, nil
}

func runBenchmark(stories []LabeledStory, baseURL string, workers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	jobs := make(chan LabeledStory, workers)
	client := &http.Client{Timeout: 30 * time.Second}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				processStory(client, baseURL, s, metrics, verbose)
			}
		}()
	}

	for _, s := range stories {
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	return metrics
}

func processStory(client *http.Client, baseURL string, s LabeledStory, metrics *Metrics, verbose bool) {
	req := ScoreRequest{
		StoryID:           s.ID,
		Title:             s.Title,
		CommentCount:      s.CommentCount,
		Score:             s.Score,
		SpamScore:         s.SpamScore,
		SentimentVariance: s.SentimentVariance,
	}

	body, _ := json.Marshal(req)

	start := time.Now()
	resp, err := client.Post(baseURL+"/score", "application/json", bytes.NewReader(body))
	latency := time.Since(start)

	if err != nil {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}

	atomic.AddInt64(&metrics.TotalProcessed, 1)
	metrics.mu.Lock()
	metrics.latencies = append(metrics.latencies, latency)
	metrics.mu.Unlock()

	flagged := result.requiresReview()
	switch {
	case s.NeedsReview && flagged:
		atomic.AddInt64(&metrics.TruePositives, 1)
	case !s.NeedsReview && flagged:
		atomic.AddInt64(&metrics.FalsePositives, 1)
	case !s.NeedsReview && !flagged:
		atomic.AddInt64(&metrics.TrueNegatives, 1)
	default:
		atomic.AddInt64(&metrics.FalseNegatives, 1)
	}

	if verbose {
		fmt.Printf("  %-12s label=%v verdict=%v latency=%s\n", s.ID, s.NeedsReview, flagged, latency)
	}
}

func printResults(m *Metrics, duration time.Duration) {
	tp := float64(m.TruePositives)
	fp := float64(m.FalsePositives)
	fn := float64(m.FalseNegatives)

	precision := 0.0
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	fmt.Println("\nResults")
	fmt.Println("-------")
	fmt.Printf("Processed:       %d (%d errors)\n", m.TotalProcessed, m.TotalErrors)
	fmt.Printf("Duration:        %s (%.1f stories/sec)\n", duration.Round(time.Millisecond),
		float64(m.TotalProcessed)/duration.Seconds())
	fmt.Println()
	fmt.Printf("True positives:  %d\n", m.TruePositives)
	fmt.Printf("False positives: %d\n", m.FalsePositives)
	fmt.Printf("True negatives:  %d\n", m.TrueNegatives)
	fmt.Printf("False negatives: %d\n", m.FalseNegatives)
	fmt.Println()
	fmt.Printf("Precision:       %.4f\n", precision)
	fmt.Printf("Recall:          %.4f\n", recall)
	fmt.Printf("F1 score:        %.4f\n", f1)

	if len(m.latencies) > 0 {
		sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		fmt.Println()
		fmt.Printf("Latency avg:     %s\n", (total / time.Duration(len(m.latencies))).Round(time.Microsecond))
		fmt.Printf("Latency p95:     %s\n", percentile(m.latencies, 0.95).Round(time.Microsecond))
		fmt.Printf("Latency p99:     %s\n", percentile(m.latencies, 0.99).Round(time.Microsecond))
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
