package config

import "time"

// Node endpoints shipped with the desktop wallet.
const (
	LocalServerURL   = "http://localhost:9334"
	TestnetServerURL = "http://172.104.168.159:9334"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.coinsync",
		Node: NodeConfig{
			Timeout:            30 * time.Second,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
			RetryAttempts:      3,
			RetryBaseDelay:     500 * time.Millisecond,
			RetryMaxDelay:      4 * time.Second,
		},
		Servers: []ServerConfig{
			{Name: "Local", URL: LocalServerURL},
			{Name: "Testnet", URL: TestnetServerURL, Default: true},
		},
		Sync: SyncConfig{
			DebounceWindow:      720 * time.Millisecond,
			FeeDebounceWindow:   720 * time.Millisecond,
			RequestTimeout:      20 * time.Second,
			MaxConcurrent:       4,
			HistoryPollInterval: time.Minute,
			SubscriberBuffer:    16,
		},
		Fees: FeesConfig{
			EnforceMinFeePerKb: false,
		},
		Send: SendConfig{
			ConfirmationTTL: 2 * time.Minute,
			Decimals:        2,
			Symbol:          "CONST",
			Privacy:         false,
		},
		Cache: CacheConfig{
			Persist: true,
			File:    "balances.json",
			MaxAge:  7 * 24 * time.Hour,
		},
		History: HistoryConfig{
			Persist: true,
			Dir:     "history",
		},
		Accounts: AccountsConfig{
			File: "accounts.yaml",
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.coinsync/coinsync.log",
		},
	}
}
