package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/artificer/cmd/artificer/commands"
	"github.com/teranos/artificer/config"
	"github.com/teranos/artificer/logger"
)

var rootCmd = &cobra.Command{
	Use:   "artificer",
	Short: "Artificer - metadata repository for engineering artifacts",
	Long: `Artificer - metadata repository for engineering artifacts.

Artificer stores documents such as XSD and WSDL files, derives their schema
components into a typed relationship graph and answers path queries over it.

Available commands:
  config   - Show or initialise artificer.toml
  db       - Manage the repository database
  upload   - Store a document and derive it
  query    - Run a repository query
  ontology - Import, export and list classification ontologies
  graph    - Show the relationship neighborhood of an artifact
  version  - Show version information

Examples:
  artificer db migrate
  artificer upload orders.xsd --wait
  artificer query "/s-ramp/xsd/XsdDocument[@owner = ?]" --param ops
  artificer ontology import colors.owl`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.InitializeWithLevel(cfg.Log.JSON, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Acting user recorded in audit fields")

	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.UploadCmd)
	rootCmd.AddCommand(commands.QueryCmd)
	rootCmd.AddCommand(commands.OntologyCmd)
	rootCmd.AddCommand(commands.GraphCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}
