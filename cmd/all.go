package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Create the project and run its first deploy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			return s.deployer.All(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(allCmd)
}
