package config

import "github.com/spf13/viper"

// Default values referenced outside this package
const (
	DefaultDatabasePath    = "artificer.db"
	DefaultSequencingWait  = 30
	DefaultQueryCount      = 20
	DefaultMaxQueryCount   = 1000
	DefaultDerivationQueue = 64
	DefaultDirPermissions  = 0750
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("derivation.workers", 2)
	v.SetDefault("derivation.queue_size", DefaultDerivationQueue)
	v.SetDefault("derivation.rate_limit", 0.0)
	v.SetDefault("derivation.work_dir", "")
	v.SetDefault("derivation.max_content_bytes", int64(0))

	v.SetDefault("sequencing.timeout_seconds", DefaultSequencingWait)

	v.SetDefault("query.default_count", DefaultQueryCount)
	v.SetDefault("query.max_count", DefaultMaxQueryCount)

	v.SetDefault("repository.relink_dependents", false)
	v.SetDefault("repository.default_user", "anonymous")

	v.SetDefault("log.json", false)
}

// Default returns a Config populated only from defaults
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal of defaults alone cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}
