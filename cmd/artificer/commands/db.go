package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/config"
	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the repository database",
	Long: `Manage the repository database.

Examples:
  artificer db migrate            # Create or upgrade the schema
  artificer db stats              # Count artifacts per model`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show artifact counts per model",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	path := cfg.Database.Path
	if flag, _ := cmd.Flags().GetString("db"); flag != "" {
		path = flag
	}

	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return errors.Wrapf(err, "failed to open database at %s", path)
	}
	defer database.Close()

	applied, err := db.Migrate(database, logger.Logger)
	if err != nil {
		return errors.Wrapf(err, "failed to run migrations on %s", path)
	}
	if len(applied) == 0 {
		pterm.Success.Printfln("Database %s is up to date", path)
		return nil
	}
	pterm.Success.Printfln("Applied migrations %s to %s", strings.Join(applied, ", "), path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	data := pterm.TableData{{"Model", "Artifacts"}}
	for _, model := range artifact.Models() {
		arts, err := s.repo.List(s.ctx, model)
		if err != nil {
			return err
		}
		data = append(data, []string{model, pterm.Sprint(len(arts))})
	}
	onts, err := s.repo.ListOntologies(s.ctx)
	if err != nil {
		return err
	}
	queries, err := s.repo.ListStoredQueries(s.ctx)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Repository statistics")
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	versions, err := db.AppliedVersions(s.ctx, s.repo.Store().DB())
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Ontologies: %d, stored queries: %d", len(onts), len(queries))
	if len(versions) > 0 {
		pterm.Info.Printfln("Schema version: %s", versions[len(versions)-1])
	}
	return nil
}
