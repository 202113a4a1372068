package cmd

import (
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"deploykit/scaffold"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write the default templates and a sample settings file into a project",
	Long: `init writes deploy.yaml and the deploy/ templates (nginx, gunicorn, supervisor,
local settings, git hook, crontab) into dir, the current directory by default. Files
that already exist are never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		results, err := scaffold.Init(dir)
		if err != nil {
			return err
		}
		for _, res := range results {
			if res.Created {
				klog.Infof("Created %s", res.Path)
			} else {
				klog.Infof("Kept existing %s", res.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
