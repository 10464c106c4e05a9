package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/coinsync/internal/config"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// redacted replaces secrets in displayed configuration.
const redacted = "********"

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify coinsync configuration settings.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.coinsync/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Example: `  coinsync config init
  coinsync config init --force
  coinsync --home /srv/coinsync config init`,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: file values, environment overrides
and command-line flags combined. Passwords are redacted.`,
	Example: `  coinsync config show
  coinsync config show -o json`,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree; list entries
are addressed by index.`,
	Example: `  coinsync config get sync.debounce_window
  coinsync config get servers.0.url
  coinsync config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree. The new
configuration is validated before the file is updated.`,
	Example: `  coinsync config set node.url http://localhost:9334
  coinsync config set fees.enforce_min_fee_per_kb true
  coinsync config set sync.history_poll_interval 30s`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = groupConfig
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return coinerr.WithSuggestion(
			coinerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cfg.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if formatter.IsJSON() {
		return formatter.Print(map[string]string{"path": configPath})
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - servers / node.url: the wallet node to talk to")
	outln(w, "  - accounts.file: the exported account list (default accounts.yaml)")
	outln(w, "  - sync.debounce_window: how long refresh requests are coalesced")
	outln(w, "  - fees.enforce_min_fee_per_kb: block sends below the minimum fee")
	outln(w, "  - logging.level: Log level (off/error/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	shown := redactSecrets(cfg)

	if formatter.IsJSON() {
		return formatter.Print(shown)
	}

	data, err := yaml.Marshal(shown)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	w := cmd.OutOrStdout()
	if _, err = w.Write(data); err != nil {
		return err
	}
	if env := config.ActiveEnvNames(); len(env) > 0 {
		out(w, "# environment overrides: %s\n", strings.Join(env, ", "))
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	var doc yaml.Node
	if err := doc.Encode(redactSecrets(cfg)); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	node, err := lookupPath(&doc, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if node.Kind == yaml.ScalarNode {
		outln(w, node.Value)
		return nil
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]
	configPath := config.Path(cfg.Home)

	current, err := config.Load(configPath)
	if err != nil {
		if !coinerr.Is(err, coinerr.ErrConfigNotFound) {
			return err
		}
		current = config.Defaults()
		current.Home = cfg.Home
	}

	var doc yaml.Node
	if err = doc.Encode(current); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err = setPath(&doc, path, value); err != nil {
		return err
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	updated := config.Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(updated); err != nil {
		return coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"path": path, "value": value})
	}
	if err = updated.Validate(); err != nil {
		return err
	}

	if err = config.Save(updated, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, value)
	return nil
}

// lookupPath walks a dot-separated path through a YAML document.
func lookupPath(doc *yaml.Node, path string) (*yaml.Node, error) {
	notFound := coinerr.WithSuggestion(
		coinerr.WithDetails(coinerr.ErrNotFound, map[string]string{"path": path}),
		"run 'coinsync config show' to list the configuration keys",
	)

	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, part := range strings.Split(path, ".") {
		next := child(n, part)
		if next == nil {
			return nil, notFound
		}
		n = next
	}
	return n, nil
}

// setPath replaces the scalar at path. A missing last key of a mapping is
// added, since optional settings are left out of the encoded document.
func setPath(doc *yaml.Node, path, value string) error {
	parentPath, key := "", path
	if i := strings.LastIndex(path, "."); i >= 0 {
		parentPath, key = path[:i], path[i+1:]
	}

	parent := doc
	if parent.Kind == yaml.DocumentNode && len(parent.Content) > 0 {
		parent = parent.Content[0]
	}
	if parentPath != "" {
		var err error
		if parent, err = lookupPath(doc, parentPath); err != nil {
			return err
		}
	}

	target := child(parent, key)
	if target == nil {
		if parent.Kind != yaml.MappingNode {
			_, err := lookupPath(doc, path)
			return err
		}
		target = &yaml.Node{Kind: yaml.ScalarNode}
		parent.Content = append(parent.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, target)
	}
	if target.Kind != yaml.ScalarNode {
		return coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"path": path, "reason": "not a single value"})
	}

	target.Value = value
	target.Tag = ""
	target.Style = 0
	return nil
}

func child(n *yaml.Node, key string) *yaml.Node {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				return n.Content[i+1]
			}
		}
	case yaml.SequenceNode:
		var idx int
		if _, err := fmt.Sscanf(key, "%d", &idx); err == nil && idx >= 0 && idx < len(n.Content) {
			return n.Content[idx]
		}
	}
	return nil
}

// redactSecrets returns a copy of c with passwords masked.
func redactSecrets(c *config.Config) *config.Config {
	shown := *c
	if shown.Node.Password != "" {
		shown.Node.Password = redacted
	}
	shown.Servers = make([]config.ServerConfig, len(c.Servers))
	for i, s := range c.Servers {
		if s.Password != "" {
			s.Password = redacted
		}
		shown.Servers[i] = s
	}
	return &shown
}

