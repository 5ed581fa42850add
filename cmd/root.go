package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "vitalsync",
	Short:         "Wearable health metrics sync service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}
