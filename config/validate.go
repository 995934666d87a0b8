package config

import "github.com/teranos/artificer/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Derivation workers: 0 = derive inline on the request goroutine, negative = invalid
	if c.Derivation.Workers < 0 {
		return errors.Newf("derivation.workers must be >= 0, got %d", c.Derivation.Workers)
	}
	if c.Derivation.Workers > 0 && c.Derivation.QueueSize <= 0 {
		return errors.Newf("derivation.queue_size must be > 0 when workers are enabled, got %d", c.Derivation.QueueSize)
	}
	if c.Derivation.RateLimit < 0 {
		return errors.Newf("derivation.rate_limit must be >= 0, got %f", c.Derivation.RateLimit)
	}
	if c.Derivation.MaxContentBytes < 0 {
		return errors.Newf("derivation.max_content_bytes must be >= 0, got %d", c.Derivation.MaxContentBytes)
	}

	// Sequencing timeout must be positive: a zero wait would always report TimedOut
	if c.Sequencing.TimeoutSeconds <= 0 {
		return errors.Newf("sequencing.timeout_seconds must be > 0, got %d", c.Sequencing.TimeoutSeconds)
	}

	if c.Query.DefaultCount <= 0 {
		return errors.Newf("query.default_count must be > 0, got %d", c.Query.DefaultCount)
	}
	if c.Query.MaxCount < c.Query.DefaultCount {
		return errors.Newf("query.max_count (%d) must be >= query.default_count (%d)", c.Query.MaxCount, c.Query.DefaultCount)
	}

	return nil
}
