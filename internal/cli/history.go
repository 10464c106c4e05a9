package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/output"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// historyOffline lists stored records without syncing.
	historyOffline bool
	// historyLimit caps the number of listed records.
	historyLimit int
	// historyPending lists only records still pending.
	historyPending bool
)

// historyCmd lists an account's transactions.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var historyCmd = &cobra.Command{
	Use:   "history <account>",
	Short: "List an account's transactions",
	Long: `Sync an account's transaction history from the node and list it, newest first.

Records are merged by transaction id; a pending record moves to confirmed or
failed once the node reports it. When history.persist is enabled the records
are kept between runs and --offline lists them without calling the node.`,
	Example: `  coinsync history main
  coinsync history main --limit 10
  coinsync history main --pending
  coinsync history main --offline -o json`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeOneAccount,
	RunE:              runHistory,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	historyCmd.GroupID = groupSync
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historyOffline, "offline", false, "list stored records without syncing")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum number of records to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyPending, "pending", false, "list only pending records")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	if historyLimit < 0 {
		return coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"limit": "must not be negative"})
	}

	stack, err := openSyncStack(cc)
	if err != nil {
		return err
	}
	defer stack.close()

	acct, err := account.Find(stack.accounts, args[0])
	if err != nil {
		return err
	}
	if err = stack.openHistory(); err != nil {
		return err
	}

	if !historyOffline {
		ctx, cancel := cc.requestContext(cmd, 2)
		defer cancel()

		if _, err := stack.syncer(nil).SyncAccount(ctx, acct); err != nil {
			if len(stack.history.ListByAccount(acct.Name)) == 0 {
				return err
			}
			cc.Fmt.Warn("showing stored history, sync failed: %v", err)
		}
	}

	records := stack.history.ListByAccount(acct.Name)
	if historyPending {
		records = stack.history.Pending(acct.Name)
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	rows := make([]output.HistoryRow, len(records))
	for i, r := range records {
		rows[i] = historyRow(r, cc.Cfg.Send.Decimals)
	}
	return cc.Fmt.History(acct.Name, rows)
}

func historyRow(r node.TransactionRecord, decimals int) output.HistoryRow {
	return output.HistoryRow{
		TxID:        r.TxID,
		Time:        r.Time,
		Direction:   string(r.Direction),
		Amount:      node.FormatUnits(r.AmountUnits, decimals),
		AmountUnits: r.AmountUnits,
		Fee:         node.FormatUnits(r.FeeUnits, decimals),
		FeeUnits:    r.FeeUnits,
		Receivers:   r.Receivers,
		Privacy:     r.IsPrivacy,
		Status:      string(r.Status),
	}
}
