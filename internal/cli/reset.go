package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/bloom/internal/state"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restart the day offline",
		Long: `Clear the task list, the plant and the goals in the database, as the
restartDay action does on a running device. Do not run it against a database
a running device is using.

Example:
  bloom reset --db ./bloom.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(rootOpts, cmd)
		},
	}
}

func runReset(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, dbPath, err := openExisting(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	snap, found, err := st.LoadSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load snapshot", err)
	}
	seq, err := st.SavedSeq(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read save sequence", err)
	}

	var saved *state.Snapshot
	eng := newEngine(cfg, state.PersisterFunc(func(s state.Snapshot) { saved = &s }), logger)
	if found {
		eng.Restore(snap)
	}
	eng.RestartDay()

	if err := st.SaveSnapshot(ctx, *saved, seq+1); err != nil {
		return WrapExitError(ExitFailure, "failed to save snapshot", err)
	}
	logger.Debug("day restarted offline", "database", dbPath, "dropped_tasks", len(snap.Tasks))

	return out.Success(InspectReport{Database: dbPath, SavedSeq: seq + 1, Snapshot: *saved})
}
