package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	k8syaml "sigs.k8s.io/yaml"

	"deploykit/config"
	"deploykit/prompt"
	"deploykit/providers/backend"
	"deploykit/types"
	"deploykit/utils"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the record of past deploys",
	Long: `Every successful deploy is recorded per host in the state backend selected by
state_backend in the settings: a local file (the default) or an S3 bucket configured
through the AWS_* environment variables.`,
}

var stateGetCmd = &cobra.Command{
	Use:   "get [host]...",
	Short: "Show the last deploy to each host",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGetState(cmd, args)
	},
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the last deploy to every host of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListState(cmd)
	},
}

var stateDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Forget every deploy record of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeleteState(cmd)
	},
}

func init() {
	stateDeleteCmd.Flags().BoolP("force", "f", false,
		"delete the records without confirming")
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateDeleteCmd)
	rootCmd.AddCommand(stateCmd)
}

func stateBackend(ctx context.Context) (*config.Config, backend.Provider, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	backendProvider := backend.NewProvider(cfg.StateBackend)
	if err := backendProvider.PreCmd(ctx, cfg.ProjectName); err != nil {
		return nil, nil, err
	}
	return cfg, backendProvider, nil
}

func runGetState(cmd *cobra.Command, hosts []string) error {
	ctx := cmd.Context()
	cfg, backendProvider, err := stateBackend(ctx)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		hosts = cfg.Hosts
	}
	for _, host := range hosts {
		record, err := backendProvider.Read(ctx, cfg.ProjectName, host)
		if errors.Is(err, types.ErrNoRecord) {
			klog.Warningf("no deploy of %s recorded for %s", cfg.ProjectName, host)
			continue
		}
		if err != nil {
			return err
		}
		out, err := k8syaml.Marshal(record)
		if err != nil {
			return fmt.Errorf("couldn't marshal record: %v", err)
		}
		fmt.Printf("---\n%s", out)
	}
	return nil
}

func runListState(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, backendProvider, err := stateBackend(ctx)
	if err != nil {
		return err
	}
	records, err := backendProvider.List(ctx, cfg.ProjectName)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	if err := utils.TabWriteRecords(w, records, time.Now()); err != nil {
		return err
	}
	return w.Flush()
}

func runDeleteState(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, backendProvider, err := stateBackend(ctx)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("force") {
		msg := fmt.Sprintf("Delete every deploy record of %s?", cfg.ProjectName)
		if err := prompt.Require(prompt.NewSurvey(), msg); err != nil {
			return err
		}
	}
	return backendProvider.Delete(ctx, cfg.ProjectName)
}
