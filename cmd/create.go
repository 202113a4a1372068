package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a virtualenv, database and project on the server",
	Long: `Create sets up the virtualenv (asking before reusing an existing one), ships the
project code, creates the database and its user, uploads the settings template and
installs the project requirements.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			return s.deployer.Create(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
