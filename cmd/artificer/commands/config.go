package commands

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/artificer/config"
	"github.com/teranos/artificer/errors"
)

// ConfigCmd shows and writes configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise artificer.toml",
	Long: `Show the effective configuration or write a starting artificer.toml.

Examples:
  artificer config show
  artificer config check           # reports unknown keys in ./artificer.toml
  artificer config init            # writes ./artificer.toml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config")
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write the effective configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			pterm.Warning.Printfln("%s exists, previous version kept as %s.back1", path, path)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := config.Save(cfg, path); err != nil {
			return err
		}
		pterm.Success.Printfln("Wrote %s", path)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check [PATH]",
	Short: "Report unknown keys and invalid values in a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.FindProjectConfig()
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.NewInvalidRequestError("no %s found, pass a path", config.ConfigFileName)
		}
		unknown, err := config.Check(path)
		for _, key := range unknown {
			pterm.Warning.Printfln("%s: unknown key %s", path, key)
		}
		if err != nil {
			return err
		}
		pterm.Success.Printfln("%s is valid", path)
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configCheckCmd)
	ConfigCmd.AddCommand(configInitCmd)
}
