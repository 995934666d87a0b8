package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/artificer/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show artificer version information",
	Long:  `Display version, build time, commit hash, and platform information for the artificer binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		info := version.Get()

		if format != OutputTable {
			return writeValue(cmd.OutOrStdout(), format, info)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, info.String())
		if v, ok := info.Semver(); ok && v.Prerelease() != "" {
			fmt.Fprintf(out, "Pre-release: %s\n", v.Prerelease())
		}
		fmt.Fprintf(out, "Platform: %s\n", info.Platform)
		fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().StringP("output", "o", OutputTable, "Output format (table/json/yaml)")
}
