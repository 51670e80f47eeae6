package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Reaper configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	HackerNews HackerNewsConfig `json:"hackerNews"`

	// Scoring thresholds and weights
	Scoring ScoringConfig `json:"scoring"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// HackerNewsConfig holds upstream API client settings.
type HackerNewsConfig struct {
	BaseURL         string `json:"baseUrl"`
	TopStoriesCount int    `json:"topStoriesCount"`
	TimeoutSeconds  int    `json:"timeoutSeconds"`
	CacheTTLHours   int    `json:"cacheTtlHours"`
}

// ScoringConfig holds thresholds and weights for the scoring pipeline.
type ScoringConfig struct {
	// PatternsFile is the path to the YAML pattern template definitions.
	PatternsFile string `json:"patternsFile"`

	// MinConfidence is the pattern-match emission threshold (0.0-1.0).
	MinConfidence float64 `json:"minConfidence"`

	// AmbiguityThreshold is the flag emission threshold (0.0-1.0).
	AmbiguityThreshold float64 `json:"ambiguityThreshold"`

	// OverrideThreshold is the risk score requiring human override (0.0-1.0).
	OverrideThreshold float64 `json:"overrideThreshold"`

	// Risk composition weights. Any positive total; the weighted sum is
	// clamped to [0,1] rather than renormalized.
	EngagementWeight float64 `json:"engagementWeight"`
	SpamWeight       float64 `json:"spamWeight"`
	SentimentWeight  float64 `json:"sentimentWeight"`

	// LowEngagementThreshold is the comment count below which engagement
	// risk rises linearly toward 1.
	LowEngagementThreshold int `json:"lowEngagementThreshold"`

	// HighSpamThreshold triggers the flag_for_review mitigation.
	HighSpamThreshold float64 `json:"highSpamThreshold"`

	// RunTimeout bounds a single sandbox program run (0 = no timeout).
	RunTimeout time.Duration `json:"runTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns the default configuration: SQLite storage, in-memory
// cache, channel event bus, official HN Firebase API.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./reaper.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		HackerNews: HackerNewsConfig{
			BaseURL:         "https://hacker-news.firebaseio.com/v0",
			TopStoriesCount: 100,
			TimeoutSeconds:  30,
			CacheTTLHours:   1,
		},
		Scoring: ScoringConfig{
			PatternsFile:           "./patterns.yaml",
			MinConfidence:          0.5,
			AmbiguityThreshold:     0.78,
			OverrideThreshold:      0.9,
			EngagementWeight:       0.4,
			SpamWeight:             0.35,
			SentimentWeight:        0.25,
			LowEngagementThreshold: 5,
			HighSpamThreshold:      0.7,
			RunTimeout:             time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "reaper",
		},
	}
}

// FromEnv returns the default configuration with REAPER_* environment
// overrides applied.
func FromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("REAPER_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("REAPER_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("REAPER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("REAPER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("REAPER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("REAPER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("REAPER_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("REAPER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REAPER_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("REAPER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("REAPER_HN_API_BASE_URL"); v != "" {
		cfg.HackerNews.BaseURL = v
	}
	if v := os.Getenv("REAPER_PATTERNS_FILE"); v != "" {
		cfg.Scoring.PatternsFile = v
	}
	if v, ok := envFloat("REAPER_MIN_CONFIDENCE"); ok {
		cfg.Scoring.MinConfidence = v
	}
	if v, ok := envFloat("REAPER_AMBIGUITY_THRESHOLD"); ok {
		cfg.Scoring.AmbiguityThreshold = v
	}
	if v, ok := envFloat("REAPER_OVERRIDE_THRESHOLD"); ok {
		cfg.Scoring.OverrideThreshold = v
	}
	if v, ok := envInt("REAPER_HN_STORIES_COUNT"); ok {
		cfg.HackerNews.TopStoriesCount = v
	}
	if v, ok := envInt("REAPER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REAPER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
