package runner

import (
	"time"

	"github.com/smallbiznis/subscription-coprocessor/internal/config"
)

// Config controls how the loop waits when the rollup server has nothing pending.
type Config struct {
	// IdleBackoff is the first wait after an empty finish. Zero busy-polls.
	IdleBackoff    time.Duration
	IdleBackoffMax time.Duration
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		IdleBackoff:    cfg.Rollup.IdleBackoff,
		IdleBackoffMax: cfg.Rollup.IdleBackoffMax,
	}
}

func (c Config) withDefaults() Config {
	if c.IdleBackoff < 0 {
		c.IdleBackoff = 0
	}
	if c.IdleBackoffMax < c.IdleBackoff {
		c.IdleBackoffMax = c.IdleBackoff
	}
	return c
}
