// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-news/reaper/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveStory stores a raw story, updating score and comment count on refetch.
func (r *SQLRepository) SaveStory(ctx context.Context, story *domain.Story) error {
	if story.ID == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO stories (
			story_id, title, url, author, score, descendants, created_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(story_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			score = excluded.score,
			descendants = excluded.descendants,
			fetched_at = excluded.fetched_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		story.ID, story.Title, story.URL, story.Author,
		story.Score, story.Descendants,
		story.CreatedAt, story.FetchedAt,
	)
	return err
}

// GetStory retrieves a story by ID.
func (r *SQLRepository) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	query := `
		SELECT story_id, title, url, author, score, descendants, created_at, fetched_at
		FROM stories
		WHERE story_id = ?
	`

	var story domain.Story
	err := r.db.QueryRowContext(ctx, r.rebind(query), storyID).Scan(
		&story.ID, &story.Title, &story.URL, &story.Author,
		&story.Score, &story.Descendants,
		&story.CreatedAt, &story.FetchedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &story, nil
}

// SaveAmbiguityFlag stores an ambiguity flag.
func (r *SQLRepository) SaveAmbiguityFlag(ctx context.Context, flag *domain.AmbiguityFlag) error {
	if flag.StoryID == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO ambiguity_flags (id, story_id, title, ambiguity_score, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.NewString(), flag.StoryID, flag.Title,
		flag.AmbiguityScore, flag.Reason, time.Now().UTC(),
	)
	return err
}

// SavePatternInstance stores a detected pattern instance.
func (r *SQLRepository) SavePatternInstance(ctx context.Context, instance *domain.PatternInstance) error {
	if instance.ID == "" || instance.StoryID == "" {
		return fmt.Errorf("%w: instance id and story id are required", ErrInvalidInput)
	}

	patternData, _ := json.Marshal(instance.PatternData)

	query := `
		INSERT INTO pattern_instances (id, pattern_id, story_id, confidence, pattern_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		instance.ID, instance.PatternID, instance.StoryID,
		instance.Confidence, string(patternData), instance.CreatedAt,
	)
	return err
}

// SaveFailureMode stores a failure mode analysis result.
func (r *SQLRepository) SaveFailureMode(ctx context.Context, mode *domain.FailureMode) error {
	if mode.PatternInstanceID == "" {
		return fmt.Errorf("%w: pattern instance id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO failure_modes (
			id, pattern_instance_id, risk_score,
			engagement_risk, spam_risk, sentiment_drift,
			mitigation, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.NewString(), mode.PatternInstanceID, mode.RiskScore,
		mode.EngagementRisk, mode.SpamRisk, mode.SentimentDrift,
		mode.Mitigation, mode.Reason, time.Now().UTC(),
	)
	return err
}

// SaveOverrideDecision appends an override decision to the log.
func (r *SQLRepository) SaveOverrideDecision(ctx context.Context, decision *domain.OverrideDecision) error {
	if decision.StoryID == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}

	requires := 0
	if decision.RequiresOverride {
		requires = 1
	}

	query := `
		INSERT INTO override_log (
			id, story_id, requires_override, risk_score, reason, recommendation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.NewString(), decision.StoryID, requires,
		decision.RiskScore, decision.Reason, decision.Recommendation,
		time.Now().UTC(),
	)
	return err
}

// SaveEvaluation stores a complete story evaluation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.StoryEvaluation) error {
	if eval.ID == "" || eval.StoryID == "" {
		return fmt.Errorf("%w: evaluation id and story id are required", ErrInvalidInput)
	}

	var ambiguity []byte
	if eval.Ambiguity != nil {
		ambiguity, _ = json.Marshal(eval.Ambiguity)
	}
	patterns, _ := json.Marshal(eval.Patterns)
	failures, _ := json.Marshal(eval.Failures)
	overrides, _ := json.Marshal(eval.Overrides)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, story_id, timestamp, ambiguity, patterns, failures, overrides, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.StoryID, eval.Timestamp,
		nullableString(ambiguity), string(patterns), string(failures),
		string(overrides), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.StoryEvaluation, error) {
	query := `
		SELECT id, story_id, timestamp, ambiguity, patterns, failures, overrides, metadata
		FROM evaluations
		WHERE id = ?
	`

	var eval domain.StoryEvaluation
	var ambiguity sql.NullString
	var patterns, failures, overrides, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), evalID).Scan(
		&eval.ID, &eval.StoryID, &eval.Timestamp,
		&ambiguity, &patterns, &failures, &overrides, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if ambiguity.Valid && ambiguity.String != "" {
		var flag domain.AmbiguityFlag
		if err := json.Unmarshal([]byte(ambiguity.String), &flag); err == nil {
			eval.Ambiguity = &flag
		}
	}
	json.Unmarshal([]byte(patterns), &eval.Patterns)
	json.Unmarshal([]byte(failures), &eval.Failures)
	json.Unmarshal([]byte(overrides), &eval.Overrides)
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}

// SaveWeeklySummary stores a summary for a week, replacing any existing one.
func (r *SQLRepository) SaveWeeklySummary(ctx context.Context, weekStart time.Time, summaryJSON []byte) error {
	query := `
		INSERT INTO weekly_summaries (week_start, summary_json, generated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(week_start) DO UPDATE SET
			summary_json = excluded.summary_json,
			generated_at = excluded.generated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		weekStart.UTC(), string(summaryJSON), time.Now().UTC(),
	)
	return err
}

// GetWeeklySummary retrieves the summary for a week.
func (r *SQLRepository) GetWeeklySummary(ctx context.Context, weekStart time.Time) ([]byte, error) {
	query := `SELECT summary_json FROM weekly_summaries WHERE week_start = ?`

	var summary string
	err := r.db.QueryRowContext(ctx, r.rebind(query), weekStart.UTC()).Scan(&summary)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return []byte(summary), nil
}

// ListFlagsSince retrieves ambiguity flags created at or after the given time.
func (r *SQLRepository) ListFlagsSince(ctx context.Context, since time.Time) ([]*domain.AmbiguityFlag, error) {
	query := `
		SELECT story_id, title, ambiguity_score, reason
		FROM ambiguity_flags
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []*domain.AmbiguityFlag
	for rows.Next() {
		var flag domain.AmbiguityFlag
		if err := rows.Scan(&flag.StoryID, &flag.Title, &flag.AmbiguityScore, &flag.Reason); err != nil {
			return nil, err
		}
		flags = append(flags, &flag)
	}

	return flags, rows.Err()
}

// ListInstancesSince retrieves pattern instances created at or after the
// given time.
func (r *SQLRepository) ListInstancesSince(ctx context.Context, since time.Time) ([]*domain.PatternInstance, error) {
	query := `
		SELECT id, pattern_id, story_id, confidence, pattern_data, created_at
		FROM pattern_instances
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*domain.PatternInstance
	for rows.Next() {
		var instance domain.PatternInstance
		var patternData string

		if err := rows.Scan(
			&instance.ID, &instance.PatternID, &instance.StoryID,
			&instance.Confidence, &patternData, &instance.CreatedAt,
		); err != nil {
			return nil, err
		}

		if patternData != "" {
			json.Unmarshal([]byte(patternData), &instance.PatternData)
		}
		instances = append(instances, &instance)
	}

	return instances, rows.Err()
}

// ListOverridesSince retrieves override decisions logged at or after the
// given time.
func (r *SQLRepository) ListOverridesSince(ctx context.Context, since time.Time) ([]*domain.OverrideDecision, error) {
	query := `
		SELECT story_id, requires_override, risk_score, reason, recommendation
		FROM override_log
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*domain.OverrideDecision
	for rows.Next() {
		var decision domain.OverrideDecision
		var requires int

		if err := rows.Scan(
			&decision.StoryID, &requires, &decision.RiskScore,
			&decision.Reason, &decision.Recommendation,
		); err != nil {
			return nil, err
		}

		decision.RequiresOverride = requires == 1
		decisions = append(decisions, &decision)
	}

	return decisions, rows.Err()
}

// StartExecution records the start of a scoring run for a date.
func (r *SQLRepository) StartExecution(ctx context.Context, date time.Time) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO execution_state (execution_date, status, started_at)
		VALUES (?, 'running', ?)
		ON CONFLICT(execution_date) DO UPDATE SET
			status = 'running',
			started_at = excluded.started_at,
			completed_at = NULL,
			error_message = NULL
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), dateOnly(date), now)
	return err
}

// CompleteExecution marks a scoring run finished. An empty errMsg means
// success; anything else records a failure.
func (r *SQLRepository) CompleteExecution(ctx context.Context, date time.Time, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}

	query := `
		UPDATE execution_state
		SET status = ?, completed_at = ?, error_message = ?
		WHERE execution_date = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		status, time.Now().UTC(), errMsg, dateOnly(date),
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// dateOnly truncates a time to its UTC calendar date, so one execution row
// exists per day.
func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
