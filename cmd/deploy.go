package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

type deployOptions struct {
	first  bool
	backup bool
}

var deployOpts = &deployOptions{}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the latest version of the project",
	Long: `Deploy syncs the templates, ships the code, reinstalls the requirements when they
changed, collects static files, migrates the database and restarts the workers.

With --backup the current commit, database and static files are saved on the server
first, so rollback can restore them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			return s.deployer.Deploy(ctx, deployOpts.first, deployOpts.backup)
		})
	},
}

func init() {
	deployCmd.Flags().BoolVar(&deployOpts.first, "first", false,
		"first deploy of the project: let supervisor start the workers instead of restarting them")
	deployCmd.Flags().BoolVar(&deployOpts.backup, "backup", false,
		"save the current commit, database and static files before deploying")
	rootCmd.AddCommand(deployCmd)
}
