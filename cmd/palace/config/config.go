// Package configcmder provides the config command for managing persistent
// palace configuration stored in the .palace/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/config"
)

const configLongDesc string = `Manage persistent palace configuration.

Configuration is stored as config.toml in the .palace/ directory and provides
default values for command flags. CLI flags and PALACE_ environment variables
always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.api_target, client.timeout_seconds,
  search.default_k,
  playback.command, playback.args,
  events.provider, events.brokers, events.topic,
  serve.listen, reindex.workers

Use subcommands to get, set, or list configuration values:
  palace config set <key> <value>    Set a configuration value
  palace config get <key>            Get a configuration value
  palace config list                 List all configuration values

Examples:
  palace config set client.api_target http://192.168.1.20:8000
  palace config set playback.command mpv
  palace config get client.api_target
  palace config list`

const configShortDesc string = "Manage persistent palace configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
