// Package cli implements the agentctl command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"insurance-agent/internal/config"
)

type options struct {
	cfgFile string
	envFile string
	verbose bool
}

// NewRootCmd builds the agentctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Run and inspect the insurance verification assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "agent.yml", "config file path")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSubmissionsCmd(opts),
		newAuditCmd(opts),
		newHashPasswordCmd(),
	)
	return root
}

// Execute runs agentctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile, o.envFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
