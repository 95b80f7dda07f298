package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bloom/internal/config"
	"github.com/roach88/bloom/internal/state"
	"github.com/roach88/bloom/internal/store"
)

// InspectReport is the persisted state as printed by inspect.
type InspectReport struct {
	Database string         `json:"database"`
	SavedSeq uint64         `json:"saved_seq"`
	Snapshot state.Snapshot `json:"snapshot"`
}

func (r InspectReport) String() string {
	var b strings.Builder
	s := r.Snapshot
	fmt.Fprintf(&b, "Database: %s (save #%d)\n", r.Database, r.SavedSeq)
	status := "alive"
	if s.Withered {
		status = "withered"
	}
	fmt.Fprintf(&b, "Plant: stage %d/%d, %s\n", s.Stage, state.MaxStage, status)
	fmt.Fprintf(&b, "Water: %d pending, %d given\n", s.PendingWater, s.WateredCount)
	fmt.Fprintf(&b, "Goals: daily %d, cycle %d\n", s.DailyGoal, s.SessionGoal)
	fmt.Fprintf(&b, "Tasks (%d):", len(s.Tasks))
	if len(s.Tasks) == 0 {
		b.WriteString(" none")
	}
	for _, t := range s.Tasks {
		mark := " "
		switch {
		case t.Completed:
			mark = "x"
		case t.Started:
			mark = "~"
		}
		fmt.Fprintf(&b, "\n  [%s] #%d %s (%d/%d min)", mark, t.ID, t.Name, t.FocusMinutes, t.BreakMinutes)
	}
	return b.String()
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the persisted plant and task list",
		Long: `Print the snapshot stored in the database without starting the device.

Example:
  bloom inspect --db ./bloom.db
  bloom inspect --db ./bloom.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd)
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, dbPath, err := openExisting(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, found, err := st.LoadSnapshot(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load snapshot", err)
	}
	if !found {
		_ = out.Error("E_NO_SNAPSHOT", "database holds no snapshot", map[string]string{"database": dbPath})
		return NewExitError(ExitFailure, "no snapshot in "+dbPath)
	}
	seq, err := st.SavedSeq(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read save sequence", err)
	}

	return out.Success(InspectReport{Database: dbPath, SavedSeq: seq, Snapshot: snap})
}

// openExisting opens the configured database, refusing to create one.
func openExisting(cfg config.Config) (*store.Store, string, error) {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, cfg.DBPath, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, cfg.DBPath, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg.DBPath, nil
}
