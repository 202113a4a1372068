package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var manageCmd = &cobra.Command{
	Use:   "manage -- <command>",
	Short: "Run a Django management command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			out, err := s.deployer.Manage(ctx, strings.Join(args, " "))
			printOutput(out)
			return err
		})
	},
}

var pythonCmd = &cobra.Command{
	Use:   "python <code>",
	Short: "Run Python code in the project's virtualenv with Django set up",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			out, err := s.deployer.Python(ctx, strings.Join(args, " "), true)
			printOutput(out)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(manageCmd)
	rootCmd.AddCommand(pythonCmd)
}
