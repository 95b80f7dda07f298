package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bloom/internal/config"
	"github.com/roach88/bloom/internal/device"
	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/server"
	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
	"github.com/roach88/bloom/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Addr            string
	OrientationFile string
	LightFile       string

	// Ready, when set, receives the listening server once startup is done
	// (for testing).
	Ready func(*server.Server)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the timer, sensing loop and network API",
		Long: `Start bloom: restore the persisted state, run the sensing loop and serve the
HTTP and WebSocket API until interrupted.

Sensors are optional. Point --orientation-file and --light-file at files
holding a single integer reading, such as IIO raw channels under sysfs.

Example:
  bloom run --db ./bloom.db
  bloom run -c bloom.yaml --addr 127.0.0.1:9000 --verbose
  bloom run --orientation-file /sys/bus/iio/devices/iio:device0/in_accel_y_raw`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&opts.OrientationFile, "orientation-file", "", "file with the raw orientation reading")
	cmd.Flags().StringVar(&opts.LightFile, "light-file", "", "file with the raw light reading")

	return cmd
}

func runDevice(opts *RunOptions, cmd *cobra.Command) error {
	logger := opts.newLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTPAddr = opts.Addr
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	writer := store.NewSnapshotWriter(st, logger)
	eng := newEngine(cfg, writer, logger)

	snap, found, err := st.LoadSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}
	if found {
		eng.Restore(snap)
		writer.Prime(snap)
		logger.Info("state restored", "tasks", len(snap.Tasks), "withered", snap.Withered, "stage", snap.Stage)
	}

	access := shared.NewAccessor(eng, shared.WithAccessorLogger(logger))
	notifier := shared.NewNotifier(cfg.NotifierDepth)
	loop := device.NewLoop(access, notifier, loopOptions(opts, cfg, logger)...)

	srvOpts := []server.Option{server.WithLogger(logger)}
	if cfg.MidnightCheck {
		loc, err := cfg.Location()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid timezone", err)
		}
		srvOpts = append(srvOpts, server.WithDayWatcher(server.NewDayWatcher(time.Now(), loc), 0))
	}
	srv := server.New(access, notifier, srvOpts...)

	// The writer outlives the loops so their last commits are flushed.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run(writerCtx) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("component failed", "component", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	start("sensing loop", loop.Run)
	start("network loop", srv.Run)
	start("http server", func(ctx context.Context) error {
		return srv.ListenAndServe(ctx, cfg.HTTPAddr)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "bloom listening on %s\n", cfg.HTTPAddr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready(srv)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()

	stopWriter()
	if err := <-writerDone; err != nil {
		errs = append(errs, fmt.Errorf("snapshot writer: %w", err))
	}
	logger.Info("stopped", "snapshots_written", writer.Writes(), "snapshot_failures", writer.Failures(),
		"broadcasts_dropped", notifier.Dropped(), "events_evicted", eng.Bus().Evicted())

	if err := errors.Join(errs...); err != nil {
		return WrapExitError(ExitFailure, "bloom stopped with errors", err)
	}
	return nil
}

func newEngine(cfg config.Config, p state.Persister, logger *slog.Logger) *state.Engine {
	return state.New(event.NewBus(cfg.EventCapacity),
		state.WithMaxTasks(cfg.MaxTasks),
		state.WithPersister(p),
		state.WithLogger(logger),
		state.WithTickInterval(cfg.TickInterval()),
		state.WithLightRevive(cfg.LightThreshold, cfg.LightRevive()),
	)
}

func loopOptions(opts *RunOptions, cfg config.Config, logger *slog.Logger) []device.LoopOption {
	loopOpts := []device.LoopOption{
		device.WithInterval(cfg.SensorInterval()),
		device.WithLoopLogger(logger),
		device.WithConsumers(device.LogConsumer{Logger: logger}),
	}
	if opts.OrientationFile != "" {
		detector := device.NewFlipDetector(cfg.FlipLow, cfg.FlipHigh, cfg.FlipDebounce())
		loopOpts = append(loopOpts, device.WithOrientation(device.FileSensor{Path: opts.OrientationFile}, detector))
	}
	if opts.LightFile != "" {
		loopOpts = append(loopOpts, device.WithLight(device.FileSensor{Path: opts.LightFile}))
	}
	return loopOpts
}
