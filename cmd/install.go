package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the base system and Python requirements for the entire server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			return s.deployer.Install(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
