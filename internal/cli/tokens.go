package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/output"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Token kinds accepted by --kind.
const (
	tokenKindAll     = "all"
	tokenKindPrivacy = "privacy"
	tokenKindCustom  = "custom"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var tokensKind string

// tokensCmd lists an account's token balances.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tokensCmd = &cobra.Command{
	Use:   "tokens <account>",
	Short: "List an account's custom and privacy token balances",
	Long: `Fetch the token balances of an account from the node.

Privacy tokens are listed first, then custom tokens, each sorted by symbol.
Token amounts are shown in the token's base units. Balances are read fresh on
every run; nothing is cached.`,
	Example: `  coinsync tokens main
  coinsync tokens main --kind privacy
  coinsync tokens savings -o json`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeOneAccount,
	RunE:              runTokens,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	tokensCmd.GroupID = groupSync
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&tokensKind, "kind", tokenKindAll, "token kind: all, privacy, custom")
	_ = tokensCmd.RegisterFlagCompletionFunc("kind", cobra.FixedCompletions(
		[]string{tokenKindAll, tokenKindPrivacy, tokenKindCustom}, cobra.ShellCompDirectiveNoFileComp))
}

func runTokens(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	keep, err := tokenFilter(tokensKind)
	if err != nil {
		return err
	}

	accounts, err := cc.Accounts()
	if err != nil {
		return err
	}
	acct, err := account.Find(accounts, args[0])
	if err != nil {
		return err
	}

	client, err := cc.Client()
	if err != nil {
		return err
	}

	ctx, cancel := cc.requestContext(cmd, 2)
	defer cancel()

	tokens, err := client.ListTokens(ctx, acct)
	if err != nil {
		return err
	}

	rows := make([]output.TokenRow, 0, len(tokens))
	for _, t := range tokens {
		if keep(t) {
			rows = append(rows, output.TokenRow(t))
		}
	}
	return cc.Fmt.Tokens(acct.Name, rows)
}

func tokenFilter(kind string) (func(node.TokenBalance) bool, error) {
	switch kind {
	case tokenKindAll, "":
		return func(node.TokenBalance) bool { return true }, nil
	case tokenKindPrivacy:
		return func(t node.TokenBalance) bool { return t.Privacy }, nil
	case tokenKindCustom:
		return func(t node.TokenBalance) bool { return !t.Privacy }, nil
	default:
		return nil, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{
			"kind": "must be all, privacy or custom",
		})
	}
}
