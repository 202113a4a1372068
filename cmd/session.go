package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"deploykit/config"
	"deploykit/deploy"
	"deploykit/prompt"
	"deploykit/providers/backend"
	"deploykit/remote"
	"deploykit/templates"
)

// session is everything a command needs to act on one host.
type session struct {
	config   *config.Config
	host     string
	printer  *remote.Printer
	executor *remote.Executor
	syncer   *templates.Syncer
	deployer *deploy.Deployer
}

// loadConfig reads the settings file. Having no host to act on ends the process.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, cfgFile)
	if errors.Is(err, config.ErrNoHosts) {
		klog.Exitf("Aborting, no hosts defined.")
	}
	return cfg, err
}

// forEachHost runs fn against every configured host, one after the other, stopping at
// the first failure.
func forEachHost(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	printer := remote.NewPrinter(os.Stdout)
	prompter := prompt.NewSurvey()
	states := backend.NewProvider(cfg.StateBackend)

	for _, host := range cfg.Hosts {
		klog.V(2).Infof("[%s] executing %s", host, cmd.CommandPath())
		if err := runOnHost(ctx, cfg, host, printer, prompter, states, fn); err != nil {
			return fmt.Errorf("[%s] %w", host, err)
		}
	}
	return nil
}

func runOnHost(ctx context.Context, cfg *config.Config, host string, printer *remote.Printer,
	prompter prompt.Prompter, states backend.Provider, fn func(ctx context.Context, s *session) error) error {
	transport, err := remote.Dial(remote.DialConfig{
		Host:                  host,
		Port:                  cfg.Port,
		User:                  cfg.User,
		Password:              cfg.Password,
		KeyPath:               cfg.KeyPath,
		KnownHosts:            cfg.KnownHosts,
		InsecureIgnoreHostKey: cfg.InsecureIgnoreHostKey,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			klog.V(4).Infof("[ssh] closing %s: %v", transport.Addr, err)
		}
	}()

	executor := remote.NewExecutor(transport, printer, cfg.Password)
	syncer, err := templates.NewSyncer(cfg, executor, prompter, printer.Writer())
	if err != nil {
		return err
	}
	return fn(ctx, &session{
		config:   cfg,
		host:     host,
		printer:  printer,
		executor: executor,
		syncer:   syncer,
		deployer: deploy.New(cfg, host, executor, syncer, remote.NewLocal(printer), prompter, printer, states),
	})
}

// printOutput writes the output of a command the operator asked for explicitly.
func printOutput(out string) {
	if out != "" {
		fmt.Println(out)
	}
}
