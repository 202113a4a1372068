package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var aptCmd = &cobra.Command{
	Use:   "apt <package>...",
	Short: "Install one or more system packages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			_, err := s.deployer.Apt(ctx, strings.Join(args, " "))
			return err
		})
	},
}

var pipCmd = &cobra.Command{
	Use:   "pip <package>...",
	Short: "Install one or more Python packages within the virtualenv",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			_, err := s.deployer.Pip(ctx, strings.Join(args, " "))
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(aptCmd)
	rootCmd.AddCommand(pipCmd)
}
