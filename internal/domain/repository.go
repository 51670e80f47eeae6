package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The scoring core
// never writes storage itself; it hands value objects to this sink.
type Repository interface {
	// Raw story operations
	SaveStory(ctx context.Context, story *Story) error
	GetStory(ctx context.Context, storyID string) (*Story, error)

	// Scoring outputs
	SaveAmbiguityFlag(ctx context.Context, flag *AmbiguityFlag) error
	SavePatternInstance(ctx context.Context, instance *PatternInstance) error
	SaveFailureMode(ctx context.Context, mode *FailureMode) error
	SaveOverrideDecision(ctx context.Context, decision *OverrideDecision) error

	// Evaluation aggregates
	SaveEvaluation(ctx context.Context, eval *StoryEvaluation) error
	GetEvaluation(ctx context.Context, evalID string) (*StoryEvaluation, error)

	// Weekly summaries
	SaveWeeklySummary(ctx context.Context, weekStart time.Time, summaryJSON []byte) error
	GetWeeklySummary(ctx context.Context, weekStart time.Time) ([]byte, error)

	// Weekly aggregation reads
	ListFlagsSince(ctx context.Context, since time.Time) ([]*AmbiguityFlag, error)
	ListInstancesSince(ctx context.Context, since time.Time) ([]*PatternInstance, error)
	ListOverridesSince(ctx context.Context, since time.Time) ([]*OverrideDecision, error)

	// Execution state tracking
	StartExecution(ctx context.Context, date time.Time) error
	CompleteExecution(ctx context.Context, date time.Time, errMsg string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
