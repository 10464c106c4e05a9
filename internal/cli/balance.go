package cli

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/api"
	"github.com/mrz1836/coinsync/internal/output"
	historysvc "github.com/mrz1836/coinsync/internal/service/history"
	"github.com/mrz1836/coinsync/internal/state"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// balanceRefresh drops cached balances before fetching.
	balanceRefresh bool
	// balanceCachedOnly shows cached balances without calling the node.
	balanceCachedOnly bool
	// watchListen is the address of the HTTP api, empty to disable it.
	watchListen string
)

// balanceCmd is the parent command for balance operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show and watch account balances",
	Long: `Show and watch the balances of wallet accounts.

Balances are cached locally. A cached balance is shown immediately and
replaced as soon as the node answers with a fresh one.`,
}

// balanceShowCmd shows balances once.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceShowCmd = &cobra.Command{
	Use:   "show [account...]",
	Short: "Show account balances",
	Long: `Fetch and show the balance of every account, or of the named accounts.

An account whose fetch fails keeps its last cached balance, marked as cached.
Use --cached to skip the node entirely and --refresh to ignore the cache.`,
	Example: `  coinsync balance show
  coinsync balance show main savings
  coinsync balance show --cached
  coinsync balance show --refresh -o json`,
	ValidArgsFunction: completeAccountNames,
	RunE:              runBalanceShow,
}

// balanceWatchCmd streams balance updates until interrupted.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceWatchCmd = &cobra.Command{
	Use:   "watch [account...]",
	Short: "Stream balance updates",
	Long: `Track accounts and print every balance update until interrupted.

Transaction history is polled on sync.history_poll_interval; an account whose
history changed gets its balance refreshed. With --listen, balances, history
and Prometheus metrics are also served over HTTP.`,
	Example: `  coinsync balance watch
  coinsync balance watch main --listen 127.0.0.1:9100
  coinsync balance watch -o json`,
	ValidArgsFunction: completeAccountNames,
	RunE:              runBalanceWatch,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	balanceCmd.GroupID = groupSync
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.AddCommand(balanceShowCmd)
	balanceCmd.AddCommand(balanceWatchCmd)

	balanceShowCmd.Flags().BoolVar(&balanceRefresh, "refresh", false, "ignore cached balances")
	balanceShowCmd.Flags().BoolVar(&balanceCachedOnly, "cached", false, "show cached balances only, skip the node")
	balanceWatchCmd.Flags().StringVar(&watchListen, "listen", "", "serve balances, history and metrics on this address")
}

func runBalanceShow(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	if balanceRefresh && balanceCachedOnly {
		return coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"flags": "--refresh and --cached cannot be combined"})
	}

	stack, err := openSyncStack(cc)
	if err != nil {
		return err
	}
	defer stack.close()

	accounts, err := stack.selectAccounts(args)
	if err != nil {
		return err
	}

	if balanceCachedOnly {
		return showCachedBalances(cc, stack, args)
	}

	if balanceRefresh {
		for _, a := range accounts {
			stack.cache.Invalidate(a.Name)
		}
	}

	ctx, cancel := cc.requestContext(cmd, 2)
	defer cancel()

	if err := stack.balances.SetTrackedAccounts(ctx, accounts); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	rows, missing := stack.balanceRows(accounts)
	for _, name := range missing {
		cc.Fmt.Warn("no balance for %s: the node did not answer and nothing is cached", name)
	}
	return cc.Fmt.Balances(rows)
}

func showCachedBalances(cc *CommandContext, stack *syncStack, names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var rows []output.BalanceRow
	for _, e := range stack.cache.Entries() {
		if len(want) > 0 && !want[e.Account] {
			continue
		}
		rows = append(rows, stack.balanceRow(state.BalanceUpdate{
			Account:     e.Account,
			AmountUnits: e.AmountUnits,
			Cached:      true,
			At:          e.UpdatedAt,
		}))
	}
	if len(rows) == 0 {
		return coinerr.WithSuggestion(coinerr.ErrNotFound, "no cached balances; run without --cached to fetch from the node")
	}
	return cc.Fmt.Balances(rows)
}

//nolint:gocognit // startup and ordered shutdown of the watch pipeline
func runBalanceWatch(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	ctx, stop := interruptContext(cmd)
	defer stop()

	stack, err := openSyncStack(cc)
	if err != nil {
		return err
	}
	defer stack.close()

	accounts, err := stack.selectAccounts(args)
	if err != nil {
		return err
	}
	if err = stack.openHistory(); err != nil {
		return err
	}

	updates, unsubscribe := stack.state.Subscribe(cc.Cfg.Sync.SubscriberBuffer)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for u := range updates {
			if err := cc.Fmt.BalanceEvent(stack.balanceRow(u)); err != nil {
				cc.Log.Error("watch: writing update: %v", err)
			}
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	if watchListen != "" {
		handler := api.NewHandler(stack.state, stack.balances, stack.history, api.Units{
			Decimals: cc.Cfg.Send.Decimals,
			Symbol:   cc.Cfg.Send.Symbol,
		})
		srv, err := api.Listen(watchListen, api.NewRouter(handler, cc.Metrics.Handler(), cc.logFor("api")))
		if err != nil {
			return coinerr.WithCause(coinerr.ErrNetwork, err)
		}
		defer func() {
			if err := srv.Shutdown(ctx); err != nil {
				cc.Log.Error("watch: %v", err)
			}
		}()
		cc.Fmt.Info("Serving on http://%s", srv.Addr())
	}

	if err := stack.balances.SetTrackedAccounts(ctx, accounts); err != nil && ctx.Err() == nil {
		return err
	}

	syncer := stack.syncer(func(name string) {
		stack.balances.RequestRefresh(name)
	})
	syncer.SyncAll(ctx, accounts)

	poller := historysvc.NewPoller(syncer, ticker.New(cc.Cfg.Sync.HistoryPollInterval), stack.balances.Accounts,
		historysvc.WithSyncHook(func(results []historysvc.SyncResult) {
			cc.Log.Debug("watch: synced history of %d accounts", len(results))
		}))
	poller.Start()
	defer poller.Stop()

	<-ctx.Done()
	return nil
}
