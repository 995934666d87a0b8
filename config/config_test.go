package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 2, cfg.Derivation.Workers)
	assert.Equal(t, DefaultDerivationQueue, cfg.Derivation.QueueSize)
	assert.Equal(t, DefaultQueryCount, cfg.Query.DefaultCount)
	assert.Equal(t, DefaultSequencingWait, cfg.Sequencing.TimeoutSeconds)
	assert.False(t, cfg.Repository.RelinkDependents)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero workers derives inline", func(c *Config) { c.Derivation.Workers = 0; c.Derivation.QueueSize = 0 }, false},
		{"negative workers", func(c *Config) { c.Derivation.Workers = -1 }, true},
		{"workers without queue", func(c *Config) { c.Derivation.QueueSize = 0 }, true},
		{"negative rate limit", func(c *Config) { c.Derivation.RateLimit = -1 }, true},
		{"zero sequencing timeout", func(c *Config) { c.Sequencing.TimeoutSeconds = 0 }, true},
		{"zero default count", func(c *Config) { c.Query.DefaultCount = 0 }, true},
		{"max below default", func(c *Config) { c.Query.MaxCount = 5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
[database]
path = "/var/lib/artificer/store.db"

[derivation]
workers = 4
rate_limit = 10.5

[sequencing]
timeout_seconds = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/artificer/store.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Derivation.Workers)
	assert.InDelta(t, 10.5, cfg.Derivation.RateLimit, 0.0001)
	assert.Equal(t, 5, cfg.Sequencing.TimeoutSeconds)
	assert.Equal(t, "5s", cfg.Sequencing.Timeout().String())
	// Untouched keys keep defaults
	assert.Equal(t, DefaultQueryCount, cfg.Query.DefaultCount)
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[sequencing]\ntimeout_seconds = 0\n"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := Default()
	cfg.Database.Path = "roundtrip.db"
	cfg.Repository.RelinkDependents = true
	require.NoError(t, Save(cfg, path))

	// Second save keeps a backup of the first
	cfg.Query.DefaultCount = 50
	require.NoError(t, Save(cfg, path))
	_, err := os.Stat(path + ".back1")
	assert.NoError(t, err)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip.db", loaded.Database.Path)
	assert.True(t, loaded.Repository.RelinkDependents)
	assert.Equal(t, 50, loaded.Query.DefaultCount)
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/etc/artificer/artificer.toml.back1"))
	assert.False(t, isBackupFile("/etc/artificer/artificer.toml"))
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
[derivation]
workers = 4
wrokers = 2

[query]
default_count = 10
max_count = 50

[bogus]
key = "x"
`), 0o644))

	unknown, err := Check(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bogus.key", "derivation.wrokers"}, unknown)

	require.NoError(t, os.WriteFile(path, []byte("[query]\nmax_count = 1\n"), 0o644))
	unknown, err = Check(path)
	assert.Empty(t, unknown)
	assert.Error(t, err, "max_count below the default count fails validation")
}
