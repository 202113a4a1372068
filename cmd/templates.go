package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"deploykit/templates"
	"deploykit/utils"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and upload the configuration templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the templates active for the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		active, err := templates.BuildActive(cfg)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
		if err := utils.TabWriteTemplates(w, templates.Sorted(active)); err != nil {
			return err
		}
		return w.Flush()
	},
}

var templatesSyncCmd = &cobra.Command{
	Use:   "sync [name]...",
	Short: "Upload the named templates, or all of them, when they changed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachHost(cmd, func(ctx context.Context, s *session) error {
			var results []templates.Result
			if len(args) == 0 {
				all, err := s.syncer.SyncAll(ctx)
				if err != nil {
					return err
				}
				results = all
			}
			for _, name := range args {
				res, err := s.syncer.Sync(ctx, name)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			for _, res := range results {
				status := "unchanged"
				if res.Changed {
					status = "uploaded"
				}
				s.printer.Println(fmt.Sprintf("%s: %s (%s)", res.Name, status, res.RemotePath))
			}
			return nil
		})
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesSyncCmd)
	rootCmd.AddCommand(templatesCmd)
}
