package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of " + AppName,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), appVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
