package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalsync/vitalsync/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "vitalsync %s\ncommit: %s\nbuilt: %s\n",
		version.Version, version.Commit, version.BuildTime)
	return nil
}
