package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/config"
)

// completionCmd prints shell completion scripts. Account and server names
// complete from the user's own files.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Generate shell completion script",
	Long: `Print a completion script for bash, zsh, fish or powershell.

Once loaded, account names complete for balance, history and send --from,
and server names complete for --server.`,
	Example: `  source <(coinsync completion bash)
  coinsync completion zsh > "${fpath[1]}/_coinsync"
  coinsync completion fish > ~/.config/fish/completions/coinsync.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             shellNames(),
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return completionScripts[args[0]](cmd.Root(), cmd)
	},
}

//nolint:gochecknoglobals // static table of generators
var completionScripts = map[string]func(root, cmd *cobra.Command) error{
	"bash": func(root, cmd *cobra.Command) error {
		return root.GenBashCompletionV2(cmd.OutOrStdout(), true)
	},
	"zsh": func(root, cmd *cobra.Command) error {
		return root.GenZshCompletion(cmd.OutOrStdout())
	},
	"fish": func(root, cmd *cobra.Command) error {
		return root.GenFishCompletion(cmd.OutOrStdout(), true)
	},
	"powershell": func(root, cmd *cobra.Command) error {
		return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	},
}

func shellNames() []string {
	names := make([]string, 0, len(completionScripts))
	for name := range completionScripts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// completionConfig loads the configuration for a completion request. The
// root pre-run hook does not run for those, and a broken file must not
// break the shell, so failures fall back to defaults.
func completionConfig() *config.Config {
	home := resolveHome()
	c, err := config.Load(config.Path(home))
	if err != nil {
		c = config.Defaults()
	}
	c.Home = home
	return c
}

// completeAccountNames offers account names not already on the command line.
func completeAccountNames(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	c := completionConfig()
	accounts, err := account.LoadFile(c.ResolvePath(c.Accounts.File))
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return matching(account.Names(accounts), args, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeOneAccount completes only the first positional argument.
func completeOneAccount(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeAccountNames(cmd, args, toComplete)
}

// completeServerNames offers the configured server names.
func completeServerNames(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	c := completionConfig()
	names := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		names = append(names, s.Name)
	}
	return matching(names, nil, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func matching(names, used []string, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) && !slices.Contains(used, n) {
			out = append(out, n)
		}
	}
	return out
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	completionCmd.GroupID = groupConfig
	rootCmd.AddCommand(completionCmd)
}
