// Package app assembles the CoupleMovie backend and exposes its command line.
package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/couplemovie/backend/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

// NewRootCommand creates the root command for the backend binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "couplemovie",
		Short: "CoupleMovie backend",
		Long:  "Pairs two accounts and keeps their shared movie collection, matches and watch history in sync.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file (default $"+config.EnvPrefix+"CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// Run executes the command line described by args.
func Run(ctx context.Context, args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// loadConfig resolves configuration with the command line taking precedence.
func (o *RootOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.LoadFile(o.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}
