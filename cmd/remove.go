package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"deploykit/prompt"
)

type removeOptions struct {
	venv  bool
	force bool
}

var removeOpts = &removeOptions{}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Blow away the project from the server",
	Long: `Remove deletes the project code, git repository, uploaded templates, database and
database user from the server. The virtualenv is kept unless --venv is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			if !removeOpts.force {
				msg := fmt.Sprintf("Remove project %s and its database from %s?", s.config.ProjectName, s.host)
				if err := prompt.Require(s.deployer.Prompt, msg); err != nil {
					return err
				}
			}
			return s.deployer.Remove(ctx, removeOpts.venv)
		})
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeOpts.venv, "venv", false,
		"remove the virtualenv as well")
	removeCmd.Flags().BoolVarP(&removeOpts.force, "force", "f", false,
		"remove the project without confirming")
	rootCmd.AddCommand(removeCmd)
}
