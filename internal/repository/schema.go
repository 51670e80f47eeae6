package repository

// Schema definitions for the Reaper database.
// Compatible with both SQLite and PostgreSQL.

const schemaStories = `
CREATE TABLE IF NOT EXISTS stories (
    story_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    url TEXT,
    author TEXT,
    score INTEGER NOT NULL DEFAULT 0,
    descendants INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    fetched_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stories_fetched_at ON stories(fetched_at);
`

const schemaAmbiguityFlags = `
CREATE TABLE IF NOT EXISTS ambiguity_flags (
    id TEXT PRIMARY KEY,
    story_id TEXT NOT NULL,
    title TEXT NOT NULL,
    ambiguity_score REAL NOT NULL,
    reason TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ambiguity_flags_story ON ambiguity_flags(story_id);
CREATE INDEX IF NOT EXISTS idx_ambiguity_flags_created ON ambiguity_flags(created_at);
`

const schemaPatternInstances = `
CREATE TABLE IF NOT EXISTS pattern_instances (
    id TEXT PRIMARY KEY,
    pattern_id TEXT NOT NULL,
    story_id TEXT NOT NULL,
    confidence REAL NOT NULL,
    pattern_data TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pattern_instances_story ON pattern_instances(story_id);
CREATE INDEX IF NOT EXISTS idx_pattern_instances_pattern ON pattern_instances(pattern_id);
CREATE INDEX IF NOT EXISTS idx_pattern_instances_created ON pattern_instances(created_at);
`

const schemaFailureModes = `
CREATE TABLE IF NOT EXISTS failure_modes (
    id TEXT PRIMARY KEY,
    pattern_instance_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    engagement_risk REAL,
    spam_risk REAL,
    sentiment_drift REAL,
    mitigation TEXT,
    reason TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_failure_modes_instance ON failure_modes(pattern_instance_id);
`

const schemaOverrideLog = `
CREATE TABLE IF NOT EXISTS override_log (
    id TEXT PRIMARY KEY,
    story_id TEXT NOT NULL,
    requires_override INTEGER NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL,
    reason TEXT,
    recommendation TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_override_log_story ON override_log(story_id);
CREATE INDEX IF NOT EXISTS idx_override_log_created ON override_log(created_at);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    story_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    ambiguity TEXT,
    patterns TEXT,
    failures TEXT,
    overrides TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_story ON evaluations(story_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(timestamp);
`

const schemaWeeklySummaries = `
CREATE TABLE IF NOT EXISTS weekly_summaries (
    week_start TIMESTAMP PRIMARY KEY,
    summary_json TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL
);
`

const schemaExecutionState = `
CREATE TABLE IF NOT EXISTS execution_state (
    execution_date TIMESTAMP PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'pending',
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    error_message TEXT
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaStories,
		schemaAmbiguityFlags,
		schemaPatternInstances,
		schemaFailureModes,
		schemaOverrideLog,
		schemaEvaluations,
		schemaWeeklySummaries,
		schemaExecutionState,
	}
}
