package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/output"
	"github.com/mrz1836/coinsync/internal/service/transaction"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	sendFrom    string
	sendTo      string
	sendAmount  string
	sendFee     string
	sendPrivacy bool
	sendYes     bool
	sendResend  string
)

// sendCmd validates and submits a transaction.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send from an account",
	Long: `Estimate the fee, validate and send a transaction from an account.

The amount is checked against a freshly fetched balance and the fee against
the node's minimum per kb. A summary is shown and the transaction is only
submitted once confirmed. A submission is never retried automatically.

--resend fills the destination, amount and privacy flag from a transaction
in the account's history; explicit flags override them.`,
	Example: `  coinsync send --from main --to addr1... --amount 1.50
  coinsync send --from main --to addr1... --amount 1.50 --fee 0.02 --yes
  coinsync send --from main --resend 5f2c... --yes -o json`,
	RunE: runSend,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sendCmd.GroupID = groupSend
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendFrom, "from", "", "account to send from (required)")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "destination address")
	sendCmd.Flags().StringVar(&sendAmount, "amount", "", "amount to send")
	sendCmd.Flags().StringVar(&sendFee, "fee", "", "fee override (default: estimated)")
	sendCmd.Flags().BoolVar(&sendPrivacy, "privacy", false, "send as a privacy transaction")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "send without asking for confirmation")
	sendCmd.Flags().StringVar(&sendResend, "resend", "", "fill the form from this transaction id in the history")

	_ = sendCmd.MarkFlagRequired("from")
	_ = sendCmd.RegisterFlagCompletionFunc("from", completeAccountNames)
}

//nolint:gocognit,gocyclo // sequential send steps
func runSend(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	stack, err := openSyncStack(cc)
	if err != nil {
		return err
	}
	defer stack.close()

	from, err := account.Find(stack.accounts, sendFrom)
	if err != nil {
		return err
	}
	if err = stack.openHistory(); err != nil {
		return err
	}

	fees := transaction.NewFeePipeline(transaction.FeeConfig{
		Estimator:      stack.client,
		Clock:          cc.Clock,
		Window:         cc.Cfg.Sync.FeeDebounceWindow,
		RequestTimeout: cc.Cfg.Sync.RequestTimeout,
		Metrics:        cc.Metrics,
		Logger:         cc.logFor("fees"),
	})
	defer fees.Close()

	flow := transaction.NewSendFlow(transaction.FlowConfig{
		Validator: transaction.NewValidator(stack.balances,
			transaction.WithDecimals(cc.Cfg.Send.Decimals),
			transaction.WithEnforcedMinFee(cc.Cfg.Fees.EnforceMinFeePerKb),
		),
		Fees:            fees,
		Sender:          stack.client,
		Balances:        stack.balances,
		History:         stack.history,
		Metrics:         cc.Metrics,
		Logger:          cc.logFor("send"),
		Clock:           cc.Clock,
		ConfirmationTTL: cc.Cfg.Send.ConfirmationTTL,
		OnTransition: func(prev, next transaction.State) {
			cc.Log.Debug("send: %s -> %s", prev, next)
		},
	})

	in, err := sendInput(cmd, stack, flow, from)
	if err != nil {
		return err
	}
	if err = flow.Edit(in); err != nil {
		return err
	}

	ctx, cancel := cc.requestContext(cmd, 2)
	defer cancel()

	// Incomplete input is reported by Validate with the precise field.
	if _, err = flow.RefreshFee(ctx); err != nil && !errors.Is(err, coinerr.ErrFeeNotEstimated) {
		return err
	}

	conf, err := flow.Validate(ctx)
	if err != nil {
		return err
	}
	if err = cc.Fmt.Confirmation(confirmationView(cc, conf)); err != nil {
		return err
	}

	if !sendYes {
		if !stdinIsTerminalFn() {
			return coinerr.WithSuggestion(coinerr.ErrConfirmationRequired, "re-run with --yes to send without a prompt")
		}
		if !promptConfirmFn(cmd.ErrOrStderr()) {
			flow.Dismiss()
			cc.Fmt.Info("Send cancelled.")
			return nil
		}
	}

	sendCtx, sendCancel := cc.requestContext(cmd, 1)
	defer sendCancel()

	result, err := flow.Confirm(sendCtx, conf.Token)
	if err != nil {
		return err
	}

	decimals := cc.Cfg.Send.Decimals
	return cc.Fmt.SendResult(output.SendResultView{
		TxID:   result.TxID,
		From:   result.Request.From.Name,
		To:     result.Request.ToAddress,
		Amount: node.FormatUnits(result.Request.AmountUnits, decimals),
		Fee:    node.FormatUnits(result.Request.FeeUnits, decimals),
		Status: string(result.Record.Status),
	})
}

// sendInput builds the form from flags, starting from a history record when
// --resend is set.
func sendInput(cmd *cobra.Command, stack *syncStack, flow *transaction.SendFlow, from account.Account) (transaction.Input, error) {
	in := transaction.Input{From: from, Privacy: stack.cc.Cfg.Send.Privacy}

	if sendResend != "" {
		rec := stack.history.Get(from.Name, sendResend)
		if rec.IsNone() {
			ctx, cancel := stack.cc.requestContext(cmd, 1)
			defer cancel()
			if _, err := stack.syncer(nil).SyncAccount(ctx, from); err != nil && !errors.Is(err, context.Canceled) {
				stack.cc.Log.Error("send: syncing history of %s: %v", from.Name, err)
			}
			rec = stack.history.Get(from.Name, sendResend)
		}
		if rec.IsNone() {
			return in, coinerr.WithSuggestion(
				coinerr.WithDetails(coinerr.ErrNotFound, map[string]string{"account": from.Name, "tx": sendResend}),
				"run 'coinsync history "+from.Name+"' to list transactions",
			)
		}

		if err := flow.Edit(in); err != nil {
			return in, err
		}
		if err := flow.PrefillFromRecord(rec.UnwrapOr(node.TransactionRecord{})); err != nil {
			return in, err
		}
		in = flow.Input()
	}

	flags := cmd.Flags()
	if flags.Changed("to") {
		in.ToAddress = sendTo
	}
	if flags.Changed("amount") {
		in.AmountText = sendAmount
	}
	if flags.Changed("fee") {
		in.FeeText = sendFee
	}
	if flags.Changed("privacy") {
		in.Privacy = sendPrivacy
	}
	return in, nil
}

func confirmationView(cc *CommandContext, conf *transaction.Confirmation) output.ConfirmationView {
	decimals := cc.Cfg.Send.Decimals
	warnings := make([]string, len(conf.Warnings))
	for i, w := range conf.Warnings {
		warnings[i] = w.Error()
	}
	return output.ConfirmationView{
		From:      conf.Request.From.Name,
		To:        conf.Request.ToAddress,
		Amount:    node.FormatUnits(conf.Request.AmountUnits, decimals),
		Fee:       node.FormatUnits(conf.Request.FeeUnits, decimals),
		Symbol:    cc.Cfg.Send.Symbol,
		Balance:   node.FormatUnits(conf.Balance, decimals),
		Privacy:   conf.Request.Privacy,
		Token:     conf.Token,
		ExpiresAt: conf.ExpiresAt,
		Warnings:  warnings,
	}
}
