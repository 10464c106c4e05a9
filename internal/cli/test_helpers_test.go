package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/config"
	"github.com/mrz1836/coinsync/internal/node"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

const testAccounts = `accounts:
  - name: main
    address: addr1main000000000000000000000000000000
    private_key: key-main
  - name: savings
    address: addr1savings00000000000000000000000000
    private_key: key-savings
`

// fakeNode is an in-memory node.Client.
type fakeNode struct {
	mu          sync.Mutex
	balances    map[string]uint64
	history     map[string][]node.TransactionRecord
	balanceErr  error
	historyErr  error
	minFeePerKb uint64
	sizeKb      float64
	sendErr     error
	sent        []node.SendParams
	tokens      map[string][]node.TokenBalance
	tokensErr   error
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		balances:    map[string]uint64{"main": 1000, "savings": 250},
		history:     make(map[string][]node.TransactionRecord),
		tokens:      make(map[string][]node.TokenBalance),
		minFeePerKb: 10,
		sizeKb:      1,
	}
}

func (f *fakeNode) GetBalance(_ context.Context, acct account.Account) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[acct.Name], nil
}

func (f *fakeNode) GetHistory(_ context.Context, acct account.Account) ([]node.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]node.TransactionRecord, len(f.history[acct.Name]))
	for i, r := range f.history[acct.Name] {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeNode) EstimateFee(_ context.Context, req node.FeeRequest) (*node.FeeQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &node.FeeQuote{
		ToAddress:         req.ToAddress,
		AmountUnits:       req.AmountUnits,
		EstimatedTxSizeKb: f.sizeKb,
		MinFeePerKb:       f.minFeePerKb,
		ComputedFeeUnits:  uint64(f.sizeKb * float64(f.minFeePerKb)),
		ValidForAmount:    true,
	}, nil
}

func (f *fakeNode) SendTransaction(_ context.Context, params node.SendParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, params)
	return "tx-" + string(rune('a'+len(f.sent)-1)), nil
}

func (f *fakeNode) ListTokens(_ context.Context, acct account.Account) ([]node.TokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokensErr != nil {
		return nil, f.tokensErr
	}
	return append([]node.TokenBalance(nil), f.tokens[acct.Name]...), nil
}

func (f *fakeNode) setTokens(name string, tokens ...node.TokenBalance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[name] = tokens
}

func (f *fakeNode) setBalanceErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceErr = err
}

func (f *fakeNode) setHistoryErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyErr = err
}

func (f *fakeNode) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeNode) setBalance(name string, units uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[name] = units
}

func (f *fakeNode) setHistory(name string, records ...node.TransactionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[name] = records
}

func (f *fakeNode) lastSent() node.SendParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errNodeDown = coinerr.WithCause(coinerr.ErrNetwork, io.ErrUnexpectedEOF)

// testEnv is a home directory with a config and an accounts file, and a
// fake node installed behind the client factory.
type testEnv struct {
	home string
	node *fakeNode
}

// newTestEnv prepares a home directory. mutate adjusts the written config.
// NOT parallel-safe: swaps package-level seams and globals.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	env := &testEnv{home: t.TempDir(), node: newFakeNode()}
	t.Setenv(config.EnvLogLevel, "off")

	c := config.Defaults()
	c.Home = env.home
	c.Logging.Level = "off"
	c.Logging.File = ""
	c.Node.URL = "http://127.0.0.1:1"
	c.Sync.DebounceWindow = 5 * time.Millisecond
	c.Sync.FeeDebounceWindow = 5 * time.Millisecond
	c.Sync.RequestTimeout = 2 * time.Second
	c.Sync.HistoryPollInterval = 50 * time.Millisecond
	c.History.Persist = false
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, config.Save(c, config.Path(env.home)))
	require.NoError(t, os.WriteFile(filepath.Join(env.home, "accounts.yaml"), []byte(testAccounts), 0o600))

	withClientFactory(t, func(*CommandContext) (node.Client, error) {
		return env.node, nil
	})
	withMockPrompts(t, true, false)

	return env
}

// run executes the root command with args and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runRoot(t, append([]string{"--home", e.home}, args...)...)
}

// runContext runs the root command under ctx.
func (e *testEnv) runContext(ctx context.Context, t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runRootContext(ctx, t, append([]string{"--home", e.home}, args...)...)
}

// runRoot executes the root command with fresh flag state.
func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runRootContext(context.Background(), t, args...)
}

func runRootContext(ctx context.Context, t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	restore := saveGlobals(t)
	t.Cleanup(restore)
	resetCommandState()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// resetCommandState restores every flag to its default so values from an
// earlier execution do not leak into the next one.
func resetCommandState() {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		cmd.Flags().VisitAll(reset)
		cmd.PersistentFlags().VisitAll(reset)
	})
}

// saveGlobals snapshots the package-level state initialized by the root
// command.
func saveGlobals(t *testing.T) func() {
	t.Helper()
	origCfg := cfg
	origLogger := logger
	origFormatter := formatter
	origHomeDir := homeDir
	origOutputFormat := outputFormat
	origServer := serverName
	origVerbose := verbose
	return func() {
		cfg = origCfg
		logger = origLogger
		formatter = origFormatter
		homeDir = origHomeDir
		outputFormat = origOutputFormat
		serverName = origServer
		verbose = origVerbose
	}
}

// withClientFactory replaces the node client factory and restores it on
// cleanup.
func withClientFactory(t *testing.T, f ClientFactory) {
	t.Helper()
	orig := clientFactory
	t.Cleanup(func() { clientFactory = orig })
	clientFactory = f
}

// withMockPrompts replaces the interactive seams and restores them on
// cleanup.
func withMockPrompts(t *testing.T, terminal, confirm bool) {
	t.Helper()
	origConfirm := promptConfirmFn
	origTerminal := stdinIsTerminalFn
	t.Cleanup(func() {
		promptConfirmFn = origConfirm
		stdinIsTerminalFn = origTerminal
	})
	promptConfirmFn = func(io.Writer) bool { return confirm }
	stdinIsTerminalFn = func() bool { return terminal }
}
