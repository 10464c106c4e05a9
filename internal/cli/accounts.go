package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/output"
)

// accountsCmd lists the wallet accounts.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List wallet accounts",
	Long: `List the accounts read from the exported account list (accounts.file).

Accounts are created and imported by the wallet; coinsync only reads them.
Private keys are never shown.`,
	Example: `  coinsync accounts
  coinsync accounts -o json`,
	Args: cobra.NoArgs,
	RunE: runAccounts,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	accountsCmd.GroupID = groupSync
	rootCmd.AddCommand(accountsCmd)
}

// accountView is an account without its key.
type accountView struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	accounts, err := cc.Accounts()
	if err != nil {
		return err
	}

	if cc.Fmt.IsJSON() {
		views := make([]accountView, len(accounts))
		for i, a := range accounts {
			views[i] = accountView{Name: a.Name, Address: a.Address}
		}
		return cc.Fmt.Print(map[string]any{"accounts": views})
	}

	if len(accounts) == 0 {
		return cc.Fmt.Println("No accounts.")
	}
	t := output.NewTable(output.Col("NAME"), output.Col("ADDRESS"))
	for _, a := range accounts {
		t.AddRow(a.Name, a.Address)
	}
	return t.Render(cmd.OutOrStdout())
}
