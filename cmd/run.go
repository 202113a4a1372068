package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run a shell command on the servers as the SSH user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			out, err := s.executor.Run(ctx, command)
			printOutput(out)
			return err
		})
	},
}

var sudoCmd = &cobra.Command{
	Use:   "sudo <command>",
	Short: "Run a shell command on the servers as root",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			out, err := s.executor.Sudo(ctx, command)
			printOutput(out)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sudoCmd)
}
