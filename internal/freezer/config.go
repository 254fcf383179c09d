package freezer

import "time"

// Config controls the freeze job.
type Config struct {
	BatchSize int
	Window    time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize: 200,
		Window:    7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Window <= 0 {
		c.Window = defaults.Window
	}
	return c
}
