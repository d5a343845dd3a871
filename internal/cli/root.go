// Package cli implements the changesync command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/velmie/changesync/internal/app"
	"github.com/velmie/changesync/internal/config"
	"github.com/velmie/changesync/internal/logging"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configPath string
	verbose    bool
	format     string
}

// NewRootCommand builds the changesync command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "changesync",
		Short: "Offline change synchronization engine for POS terminals",
		Long: `changesync records local changes in a durable change log and delivers them to the
remote API in priority order, with transactions, retries and crash recovery.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.format != FormatText && opts.format != FormatJSON {
				return fmt.Errorf("unknown format %q, use %s or %s", opts.format, FormatText, FormatJSON)
			}

			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.format, "format", FormatText, "output format: text or json")

	root.AddCommand(
		newRunCommand(opts),
		newStatusCommand(opts),
		newSyncCommand(opts),
		newRetryFailedCommand(opts),
		newSetPriorityCommand(opts),
		newEnqueueCommand(opts),
		newMaintenanceCommand(opts),
		newVersionCommand(),
	)

	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	return root.ExecuteContext(ctx)
}

// withApp loads the config, builds the app and closes it after fn.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.Env, level, logging.Writer(cfg.Env, cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, a)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the changesync version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "changesync %s\n", Version)
		},
	}
}
