package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/velmie/changesync"
	"github.com/velmie/changesync/internal/app"
)

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				a.Logger.Info().
					Str("driver", a.Config.Store.Driver).
					Str("remote", a.Config.Remote.BaseURL).
					Msg("changesync engine starting")

				return a.Run(ctx)
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show change log counts and remote connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if probe {
					a.Prober.Check(ctx)
				}
				snap, err := a.Status(ctx)
				if err != nil {
					return err
				}

				return renderStatus(cmd.OutOrStdout(), opts.format, snap)
			})
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", true, "probe the remote health endpoint")

	return cmd
}

func newSyncCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send every dispatchable change once and exit",
		Long: `sync recovers changes interrupted by a crash and runs processing passes until nothing
more can be sent now. Changes waiting for their retry time are left for a later run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if !a.Prober.Check(ctx) {
					return changesync.ErrOffline
				}
				result, err := a.Drain(ctx)
				if rerr := renderPass(cmd.OutOrStdout(), opts.format, result); rerr != nil {
					return errors.Join(err, rerr)
				}

				return err
			})
		},
	}
}

func newRetryFailedCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Move failed changes back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Service.RetryFailedChanges(ctx)
				if err != nil {
					return err
				}

				return renderCount(cmd.OutOrStdout(), opts.format, "requeued", "re-queued %d failed changes", n)
			})
		},
	}
}

func newSetPriorityCommand(opts *options) *cobra.Command {
	var entity bool

	cmd := &cobra.Command{
		Use:   "set-priority <change-id|entity-type> <rank>",
		Short: "Override the dispatch priority of a change or an entity type",
		Example: `  changesync set-priority 42 1
  changesync set-priority --entity inventory 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rank, err := strconv.Atoi(args[1])
			if err != nil || rank <= 0 {
				return fmt.Errorf("rank must be a positive integer, got %q", args[1])
			}
			var id int64
			if !entity {
				id, err = strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("change id must be an integer, got %q (use --entity for entity types)", args[0])
				}
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if entity {
					return a.Service.SetPriorityForEntityType(ctx, args[0], rank)
				}

				return a.Service.SetPriority(ctx, id, rank)
			})
		},
	}
	cmd.Flags().BoolVar(&entity, "entity", false, "treat the first argument as an entity type")

	return cmd
}

type enqueueInput struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority,omitempty"`
}

func newEnqueueCommand(opts *options) *cobra.Command {
	var (
		file  string
		input enqueueInput
		data  string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record changes in the change log",
		Long: `enqueue records one change from flags, or a transaction read from --file ("-" for stdin)
holding a JSON array of {entity_type, entity_id, operation, payload, priority} objects.`,
		Example: `  changesync enqueue --entity customer --id c-1 --op INSERT --payload '{"name":"Ann"}'
  changesync enqueue --file sale.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var changes []changesync.NewChange
			if file != "" {
				raw, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				var inputs []enqueueInput
				if err := json.Unmarshal(raw, &inputs); err != nil {
					return fmt.Errorf("decode %s: %w", file, err)
				}
				for _, in := range inputs {
					changes = append(changes, in.change())
				}
			} else {
				input.Payload = json.RawMessage(data)
				changes = append(changes, input.change())
			}
			if len(changes) == 0 {
				return changesync.ErrEmptyTransaction
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				txID, err := a.Service.CreateTransaction(ctx, changes)
				if err != nil {
					return err
				}
				recorded, err := a.Store.ChangesByTransaction(ctx, txID)
				if err != nil {
					return err
				}
				view := enqueueView{TransactionID: txID}
				for _, c := range recorded {
					view.IDs = append(view.IDs, c.ID)
				}
				if opts.format == FormatJSON {
					return writeJSON(cmd.OutOrStdout(), view)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "recorded %d changes in transaction %s\n", len(view.IDs), txID)

				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", `JSON file with a transaction, "-" reads stdin`)
	flags.StringVar(&input.EntityType, "entity", "", "entity type")
	flags.StringVar(&input.EntityID, "id", "", "entity id")
	flags.StringVar(&input.Operation, "op", string(changesync.OperationUpdate), "operation: INSERT, UPDATE or DELETE")
	flags.StringVar(&data, "payload", "{}", "JSON payload")
	flags.IntVar(&input.Priority, "priority", 0, "priority rank, 0 uses the entity default")
	cmd.MarkFlagsMutuallyExclusive("file", "entity")

	return cmd
}

func (in enqueueInput) change() changesync.NewChange {
	return changesync.NewChange{
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Operation:  changesync.Operation(strings.ToUpper(in.Operation)),
		Payload:    []byte(in.Payload),
		Priority:   in.Priority,
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}

	return os.ReadFile(path)
}

func newMaintenanceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Delete synced history past the retention window and compact the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				m := a.Maintainer
				if m == nil {
					var err error
					m, err = changesync.NewMaintainer(a.Store, changesync.MaintainerConfig{
						Retention:       a.Config.Maintenance.Retention,
						FailedWarnAfter: a.Config.Maintenance.FailedWarnAfter,
						Limit:           a.Config.Maintenance.Limit,
						DisableVacuum:   !a.Config.Maintenance.Vacuum,
					})
					if err != nil {
						return err
					}
				}
				result, err := m.Ensure(ctx)
				if err != nil {
					return err
				}

				return renderMaintenance(cmd.OutOrStdout(), opts.format, result)
			})
		},
	}
}
