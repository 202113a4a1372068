package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the gunicorn workers of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			return s.deployer.Restart(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
