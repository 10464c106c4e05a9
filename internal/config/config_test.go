package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coinsync/internal/config"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := config.Defaults()
	cfg.Node.URL = "http://node.example.com:9334"
	cfg.Sync.DebounceWindow = 250 * time.Millisecond
	cfg.Fees.EnforceMinFeePerKb = true
	cfg.Output.Verbose = true

	require.NoError(t, config.Save(cfg, path))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, cfg.Node.URL, loaded.Node.URL)
	assert.Equal(t, 250*time.Millisecond, loaded.Sync.DebounceWindow)
	assert.True(t, loaded.Fees.EnforceMinFeePerKb)
	assert.True(t, loaded.Output.Verbose)
	assert.Equal(t, cfg.Servers, loaded.Servers)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  debounce_window: 1s\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Sync.DebounceWindow)
	assert.Equal(t, 720*time.Millisecond, cfg.Sync.FeeDebounceWindow)
	assert.Equal(t, 2*time.Minute, cfg.Send.ConfirmationTTL)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/.coinsync", cfg.Home)
	assert.Equal(t, 720*time.Millisecond, cfg.Sync.DebounceWindow)
	assert.Equal(t, 3, cfg.Node.RetryAttempts)
	assert.False(t, cfg.Fees.EnforceMinFeePerKb)
	assert.Equal(t, 2, cfg.Send.Decimals)
	assert.Equal(t, "CONST", cfg.Send.Symbol)
	assert.Equal(t, "auto", cfg.Output.DefaultFormat)
	assert.Equal(t, "error", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestActiveServer(t *testing.T) {
	t.Parallel()

	t.Run("default entry", func(t *testing.T) {
		t.Parallel()
		s, err := config.Defaults().ActiveServer("")
		require.NoError(t, err)
		assert.Equal(t, "Testnet", s.Name)
		assert.Equal(t, config.TestnetServerURL, s.URL)
	})

	t.Run("by name, case insensitive", func(t *testing.T) {
		t.Parallel()
		s, err := config.Defaults().ActiveServer("local")
		require.NoError(t, err)
		assert.Equal(t, config.LocalServerURL, s.URL)
	})

	t.Run("node url wins over default", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		cfg.Node.URL = "http://custom:9334"
		cfg.Node.Username = "user"
		s, err := cfg.ActiveServer("")
		require.NoError(t, err)
		assert.Equal(t, "http://custom:9334", s.URL)
		assert.Equal(t, "user", s.Username)
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()
		_, err := config.Defaults().ActiveServer("mainnet")
		require.ErrorIs(t, err, coinerr.ErrNotFound)

		var ce *coinerr.CoinError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "known servers: Local, Testnet", ce.Suggestion)
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Parallel()
		cfg := config.Defaults()
		cfg.Servers = nil
		_, err := cfg.ActiveServer("")
		require.ErrorIs(t, err, coinerr.ErrConfigInvalid)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"zero debounce", func(c *config.Config) { c.Sync.DebounceWindow = 0 }, "sync.debounce_window"},
		{"negative fee debounce", func(c *config.Config) { c.Sync.FeeDebounceWindow = -time.Second }, "sync.fee_debounce_window"},
		{"zero timeout", func(c *config.Config) { c.Sync.RequestTimeout = 0 }, "sync.request_timeout"},
		{"zero concurrency", func(c *config.Config) { c.Sync.MaxConcurrent = 0 }, "sync.max_concurrent"},
		{"zero poll", func(c *config.Config) { c.Sync.HistoryPollInterval = 0 }, "sync.history_poll_interval"},
		{"negative cache age", func(c *config.Config) { c.Cache.MaxAge = -time.Hour }, "cache.max_age"},
		{"zero ttl", func(c *config.Config) { c.Send.ConfirmationTTL = 0 }, "send.confirmation_ttl"},
		{"too many decimals", func(c *config.Config) { c.Send.Decimals = 19 }, "send.decimals"},
		{"no retries", func(c *config.Config) { c.Node.RetryAttempts = 0 }, "node.retry_attempts"},
		{"no rate", func(c *config.Config) { c.Node.RateLimitPerSecond = 0 }, "node.rate_limit_per_second"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"server without url", func(c *config.Config) { c.Servers = append(c.Servers, config.ServerConfig{Name: "x"}) }, "servers"},
		{"duplicate server", func(c *config.Config) {
			c.Servers = append(c.Servers, config.ServerConfig{Name: "LOCAL", URL: "http://x"})
		}, "servers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, coinerr.ErrConfigInvalid)

			var ce *coinerr.CoinError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Details["field"])
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Home = "/data/coinsync"

	assert.Equal(t, "/data/coinsync/balances.json", cfg.ResolvePath("balances.json"))
	assert.Equal(t, "/var/lib/history", cfg.ResolvePath("/var/lib/history"))
	assert.Empty(t, cfg.ResolvePath(""))
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/config.yaml")
	require.ErrorIs(t, err, coinerr.ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(path, []byte("invalid: yaml: content: ["), 0o600)
	require.NoError(t, err)

	_, err = config.Load(path)
	require.ErrorIs(t, err, coinerr.ErrConfigInvalid)
}

func TestSave_CreatesDirectory(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "subdir", "config.yaml")

	require.NoError(t, config.Save(config.Defaults(), path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestApplyEnvironment(t *testing.T) {
	cfg := config.Defaults()

	t.Setenv("COINSYNC_HOME", "/custom/home")
	t.Setenv("COINSYNC_NODE_URL", "  http://node.example.com:9334/ ")
	t.Setenv("COINSYNC_NODE_USER", "rpcuser")
	t.Setenv("COINSYNC_NODE_PASSWORD", "rpcpass")
	t.Setenv("COINSYNC_OUTPUT_FORMAT", "JSON")
	t.Setenv("COINSYNC_VERBOSE", "true")
	t.Setenv("COINSYNC_LOG_LEVEL", "DEBUG")
	t.Setenv("COINSYNC_DEBOUNCE_MS", "300")
	t.Setenv("NO_COLOR", "")

	config.ApplyEnvironment(cfg)

	assert.Equal(t, "/custom/home", cfg.Home)
	assert.Equal(t, "http://node.example.com:9334", cfg.Node.URL)
	assert.Equal(t, "rpcuser", cfg.Node.Username)
	assert.Equal(t, "rpcpass", cfg.Node.Password)
	assert.Equal(t, "json", cfg.Output.DefaultFormat)
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 300*time.Millisecond, cfg.Sync.DebounceWindow)
	assert.Equal(t, "never", cfg.Output.Color)
}

func TestApplyEnvironment_IgnoresBadDebounce(t *testing.T) {
	cfg := config.Defaults()
	t.Setenv("COINSYNC_DEBOUNCE_MS", "soon")

	config.ApplyEnvironment(cfg)
	assert.Equal(t, 720*time.Millisecond, cfg.Sync.DebounceWindow)
}
