package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvHome           = "COINSYNC_HOME"
	EnvNodeURL        = "COINSYNC_NODE_URL"
	EnvNodeUser       = "COINSYNC_NODE_USER"
	EnvNodePassword   = "COINSYNC_NODE_PASSWORD" // #nosec G101 -- variable name, not a credential
	EnvOutputFormat   = "COINSYNC_OUTPUT_FORMAT"
	EnvVerbose        = "COINSYNC_VERBOSE"
	EnvLogLevel       = "COINSYNC_LOG_LEVEL"
	EnvDebounceMS     = "COINSYNC_DEBOUNCE_MS"
	EnvHistoryPollSec = "COINSYNC_HISTORY_POLL_SECONDS"
	EnvEnforceMinFee  = "COINSYNC_ENFORCE_MIN_FEE"
	EnvNoColor        = "NO_COLOR"
)

// envOverride sets one config value from a non-empty variable.
type envOverride struct {
	name  string
	apply func(c *Config, v string)
}

//nolint:gochecknoglobals // static override table
var envOverrides = []envOverride{
	{EnvHome, func(c *Config, v string) { c.Home = v }},
	{EnvNodeURL, func(c *Config, v string) { c.Node.URL = SanitizeURL(v) }},
	{EnvNodeUser, func(c *Config, v string) { c.Node.Username = v }},
	{EnvNodePassword, func(c *Config, v string) { c.Node.Password = v }},
	{EnvOutputFormat, func(c *Config, v string) { c.Output.DefaultFormat = strings.ToLower(v) }},
	{EnvVerbose, func(c *Config, v string) { c.Output.Verbose = parseBool(v) }},
	{EnvLogLevel, func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
	{EnvDebounceMS, func(c *Config, v string) {
		if d, ok := positiveDuration(v, time.Millisecond); ok {
			c.Sync.DebounceWindow = d
		}
	}},
	{EnvHistoryPollSec, func(c *Config, v string) {
		if d, ok := positiveDuration(v, time.Second); ok {
			c.Sync.HistoryPollInterval = d
		}
	}},
	{EnvEnforceMinFee, func(c *Config, v string) { c.Fees.EnforceMinFeePerKb = parseBool(v) }},
}

// ApplyEnvironment overrides config values from COINSYNC_* variables.
// Malformed numbers are ignored. NO_COLOR disables color when set at all.
func ApplyEnvironment(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// ActiveEnvNames lists the variables ApplyEnvironment would act on now.
func ActiveEnvNames() []string {
	var names []string
	for _, o := range envOverrides {
		if os.Getenv(o.name) != "" {
			names = append(names, o.name)
		}
	}
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		names = append(names, EnvNoColor)
	}
	return names
}

func positiveDuration(v string, unit time.Duration) (time.Duration, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// parseBool accepts 1/yes/on as well as strconv's forms. Anything else is
// false.
func parseBool(s string) bool {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "yes", "on":
		return true
	default:
		b, _ := strconv.ParseBool(s)
		return b
	}
}

// SanitizeURL drops whitespace, control characters and a trailing slash
// left behind by copy-paste.
func SanitizeURL(url string) string {
	var sb strings.Builder
	for _, r := range url {
		if r > ' ' && r != 0x7f {
			sb.WriteRune(r)
		}
	}
	return strings.TrimRight(sb.String(), "/")
}
