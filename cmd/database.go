package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var psqlCmd = &cobra.Command{
	Use:   "psql <sql>",
	Short: "Run SQL against the project's database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			out, err := s.deployer.Psql(ctx, strings.Join(args, " "), true)
			printOutput(out)
			return err
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup <filename>",
	Short: "Back up the project's database to a file on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			_, err := s.deployer.Backup(ctx, args[0])
			return err
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <filename>",
	Short: "Restore the project's database from a backup on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			_, err := s.deployer.Restore(ctx, args[0])
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(psqlCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
