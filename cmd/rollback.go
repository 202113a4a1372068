package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the project to the state saved by the last deploy --backup",
	Long: `Rollback restores the commit (git deploys only), static files and database saved
by the last deploy run with --backup, then restarts the workers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			return s.deployer.Rollback(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}
