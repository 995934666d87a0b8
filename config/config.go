// Package config loads artificer configuration ("artificer.toml") through viper.
//
// Precedence (lowest to highest): defaults < system file < user file < project file < ARTIFICER_* env vars.
package config

import "time"

// Config represents the artificer configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	Derivation DerivationConfig `mapstructure:"derivation" toml:"derivation"`
	Sequencing SequencingConfig `mapstructure:"sequencing" toml:"sequencing"`
	Query      QueryConfig      `mapstructure:"query" toml:"query"`
	Repository RepositoryConfig `mapstructure:"repository" toml:"repository"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// DerivationConfig configures the derivation worker pool
type DerivationConfig struct {
	// Workers is the number of concurrent derivation runs. 0 runs derivation inline.
	Workers int `mapstructure:"workers" toml:"workers"`
	// QueueSize bounds pending derivation jobs
	QueueSize int `mapstructure:"queue_size" toml:"queue_size"`
	// RateLimit caps derivation starts per second. 0 disables the limiter.
	RateLimit float64 `mapstructure:"rate_limit" toml:"rate_limit"`
	// WorkDir is where archives are expanded. Empty uses the OS temp dir.
	WorkDir string `mapstructure:"work_dir" toml:"work_dir"`
	// MaxContentBytes rejects larger uploads before detection. 0 allows any size.
	MaxContentBytes int64 `mapstructure:"max_content_bytes" toml:"max_content_bytes"`
}

// SequencingConfig configures the wait for derivation completion
type SequencingConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout returns the sequencing wait bound
func (s SequencingConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// QueryConfig configures query execution defaults
type QueryConfig struct {
	DefaultCount int `mapstructure:"default_count" toml:"default_count"`
	MaxCount     int `mapstructure:"max_count" toml:"max_count"`
}

// RepositoryConfig configures repository behaviour
type RepositoryConfig struct {
	// RelinkDependents re-runs linking for artifacts whose derived references stayed unresolved
	// whenever a new artifact is uploaded.
	RelinkDependents bool `mapstructure:"relink_dependents" toml:"relink_dependents"`
	// DefaultUser is recorded in audit fields when the context carries no user
	DefaultUser string `mapstructure:"default_user" toml:"default_user"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}
