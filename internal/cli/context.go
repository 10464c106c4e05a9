package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/config"
	"github.com/mrz1836/coinsync/internal/metrics"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/node/rpc"
	"github.com/mrz1836/coinsync/internal/output"
	"github.com/mrz1836/coinsync/internal/trigger"
	"github.com/mrz1836/coinsync/internal/version"
)

// clientFactory builds node clients; replaced in tests.
//
//nolint:gochecknoglobals // test seam, same pattern as the prompt functions
var clientFactory ClientFactory = newRPCClient

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     LogWriter
	Fmt     *output.Formatter
	Server  string
	Metrics *metrics.Metrics
	Clock   trigger.Clock

	newClient ClientFactory
	accounts  []account.Account
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, log LogWriter, formatter *output.Formatter) *CommandContext {
	return &CommandContext{
		Cfg:       cfg,
		Log:       log,
		Fmt:       formatter,
		Metrics:   metrics.Global,
		Clock:     trigger.SystemClock(),
		newClient: clientFactory,
	}
}

// WithServer selects a named node server.
func (c *CommandContext) WithServer(name string) *CommandContext {
	c.Server = name
	return c
}

// Client builds the node client.
func (c *CommandContext) Client() (node.Client, error) {
	return c.newClient(c)
}

// Accounts returns the wallet accounts, reading the accounts file once.
func (c *CommandContext) Accounts() ([]account.Account, error) {
	if c.accounts != nil {
		return c.accounts, nil
	}
	accounts, err := account.LoadFile(c.Cfg.ResolvePath(c.Cfg.Accounts.File))
	if err != nil {
		return nil, err
	}
	c.accounts = accounts
	return accounts, nil
}

// logFor tags the lines a component writes with its name.
func (c *CommandContext) logFor(component string) LogWriter {
	if l, ok := c.Log.(*config.Logger); ok {
		return l.Named(component)
	}
	return c.Log
}

// newRPCClient connects to the active server with the configured transport
// policy.
func newRPCClient(cc *CommandContext) (node.Client, error) {
	server, err := cc.Cfg.ActiveServer(cc.Server)
	if err != nil {
		return nil, err
	}
	if cc.Log != nil {
		cc.Log.Debug("node: using %s at %s", server.Name, config.SanitizeURL(server.URL))
	}

	opts := []rpc.Option{
		rpc.WithTimeout(cc.Cfg.Node.Timeout),
		rpc.WithUserAgent(version.UserAgent()),
	}
	if server.Username != "" || server.Password != "" {
		opts = append(opts, rpc.WithBasicAuth(server.Username, server.Password))
	}

	var recorder node.CallRecorder
	if cc.Metrics != nil {
		recorder = cc.Metrics
	}

	return node.NewRPCClient(node.RPCClientConfig{
		Caller: rpc.NewClient(server.URL, opts...),
		Backoff: node.Backoff{
			Attempts: cc.Cfg.Node.RetryAttempts,
			Base:     cc.Cfg.Node.RetryBaseDelay,
			Cap:      cc.Cfg.Node.RetryMaxDelay,
		},
		Throttle: node.NewThrottle(cc.Cfg.Node.RateLimitPerSecond, cc.Cfg.Node.RateLimitBurst),
		Recorder: recorder,
	}), nil
}

type cmdContextKey struct{}

// SetCmdContext attaches a command context to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached to cmd, or one built from the
// globals initialized by the root command.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return cc
		}
	}
	var log LogWriter = config.NullLogger()
	if logger != nil {
		log = logger
	}
	cc := NewCommandContext(cfg, log, formatter).WithServer(serverName)
	SetCmdContext(cmd, cc)
	return cc
}
