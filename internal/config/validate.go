package config

import (
	"fmt"
	"strings"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// maxDecimals keeps 10^decimals within uint64.
const maxDecimals = 18

// Validate checks the configuration for values the sync layer cannot run
// with. The first problem found is returned as ErrConfigInvalid.
//
//nolint:gocyclo // sequential field checks
func (c *Config) Validate() error {
	switch {
	case c.Sync.DebounceWindow <= 0:
		return invalid("sync.debounce_window", "must be positive")
	case c.Sync.FeeDebounceWindow <= 0:
		return invalid("sync.fee_debounce_window", "must be positive")
	case c.Sync.RequestTimeout <= 0:
		return invalid("sync.request_timeout", "must be positive")
	case c.Sync.MaxConcurrent <= 0:
		return invalid("sync.max_concurrent", "must be positive")
	case c.Sync.HistoryPollInterval <= 0:
		return invalid("sync.history_poll_interval", "must be positive")
	case c.Cache.MaxAge < 0:
		return invalid("cache.max_age", "must not be negative")
	case c.Send.ConfirmationTTL <= 0:
		return invalid("send.confirmation_ttl", "must be positive")
	case c.Send.Decimals < 0 || c.Send.Decimals > maxDecimals:
		return invalid("send.decimals", fmt.Sprintf("must be between 0 and %d", maxDecimals))
	case c.Node.RetryAttempts < 1:
		return invalid("node.retry_attempts", "must be at least 1")
	case c.Node.RateLimitPerSecond <= 0:
		return invalid("node.rate_limit_per_second", "must be positive")
	case !ValidLogLevel(c.Logging.Level):
		return invalid("logging.level", "unknown level "+c.Logging.Level)
	}

	seen := make(map[string]struct{}, len(c.Servers))
	for _, s := range c.Servers {
		key := strings.ToLower(s.Name)
		if s.Name == "" || s.URL == "" {
			return invalid("servers", "every server needs a name and url")
		}
		if _, dup := seen[key]; dup {
			return invalid("servers", "duplicate server "+s.Name)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func invalid(field, reason string) error {
	return coinerr.WithDetails(coinerr.ErrConfigInvalid, map[string]string{
		"field":  field,
		"reason": reason,
	})
}
