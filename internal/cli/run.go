package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/siniverse/taskbox/internal/journal"
	"github.com/siniverse/taskbox/internal/props"
	"github.com/siniverse/taskbox/internal/replica"
	"github.com/siniverse/taskbox/internal/runner"
	"github.com/siniverse/taskbox/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	ID        string
	Backend   string
	Username  string
	Password  string
	Proxy     string
	NoPush    bool
	Mock      bool
	MockInit  string
	StateFile string
	Journal   string
	Seed      int64

	RunInterval   time.Duration
	PollInterval  time.Duration
	WriteInterval time.Duration
}

// PropNames lists the props the run command can start.
var PropNames = []string{"counter", "drift", "fuses", "wires"}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <prop>",
		Short: "Run a prop controller against the backend",
		Long: `Run a prop controller, keeping its state synchronized with the backend.

Available props: counter, drift, fuses, wires.

With --mock the prop runs against an in-memory backend; drop a JSON
document into backend-mock-<id>.json (or use the inject command) to
simulate an external edit.

Example:
  taskbox run counter --id myid --mock
  taskbox run drift --id drift1 --backend http://backend:8888 --user box --password secret`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProp(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "backend box id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&opts.Backend, "backend", "http://localhost:8888", "backend base URL")
	cmd.Flags().StringVar(&opts.Username, "user", "", "backend basic auth user")
	cmd.Flags().StringVar(&opts.Password, "password", "", "backend basic auth password")
	cmd.Flags().StringVar(&opts.Proxy, "proxy", "", "HTTP proxy URL")
	cmd.Flags().BoolVar(&opts.NoPush, "no-push", false, "disable the push hint subscription")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "use the in-memory mock backend")
	cmd.Flags().StringVar(&opts.MockInit, "mock-init", "", "initial mock backend value as JSON")
	cmd.Flags().StringVar(&opts.StateFile, "state-file", "", "initial state document (.json or .cue)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite transition journal")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 = time-based)")
	cmd.Flags().DurationVar(&opts.RunInterval, "run-interval", 0, "callback cadence (0 = prop default)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 0, "backend poll cadence (0 = default)")
	cmd.Flags().DurationVar(&opts.WriteInterval, "write-interval", 0, "write throttle (0 = prop default)")

	return cmd
}

func runProp(opts *RunOptions, propName string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	prop, err := buildProp(propName, seed, cmd.OutOrStdout())
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown prop", err)
	}

	initialState := prop.InitialState
	if opts.StateFile != "" {
		if initialState, err = LoadStateFile(opts.StateFile); err != nil {
			return WrapExitError(ExitCommandError, "loading state file", err)
		}
	}

	tr, err := buildTransport(opts, initialState)
	if err != nil {
		return WrapExitError(ExitCommandError, "configuring transport", err)
	}

	runnerOpts := runner.Options{
		ID:            opts.ID,
		RunInterval:   prop.RunInterval,
		PollInterval:  opts.PollInterval,
		WriteInterval: prop.WriteInterval,
		InitialState:  initialState,
	}
	if opts.RunInterval > 0 {
		runnerOpts.RunInterval = opts.RunInterval
	}
	if opts.WriteInterval > 0 {
		runnerOpts.WriteInterval = opts.WriteInterval
	}

	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "opening journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		runnerOpts.Journal = j
	}

	r, err := runner.New(tr, prop.Callback, runnerOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid runner configuration", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM. Use the command's context when
	// set so tests can cancel the run.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("prop starting", "prop", propName, "box", opts.ID, "mock", opts.Mock)
	if err := r.Run(ctx); err != nil {
		if runner.IsConfigError(err) {
			return WrapExitError(ExitCommandError, "prop configuration error", err)
		}
		return WrapExitError(ExitFailure, "prop stopped", err)
	}

	slog.Info("prop stopped gracefully")
	return nil
}

// buildProp constructs the named prop. Hardware props get simulated pin
// banks; wiring real GPIO stays behind the PinBank interface.
func buildProp(name string, seed int64, display io.Writer) (*props.Prop, error) {
	switch name {
	case "counter":
		return props.Counter(seed), nil
	case "drift":
		return props.Drift(seed, display), nil
	case "fuses":
		return props.Fuses(props.DefaultFuseBank(), seed, nil), nil
	case "wires":
		return props.Wires(props.NewSimWireBank(nil)), nil
	default:
		return nil, fmt.Errorf("unknown prop %q (available: %v)", name, PropNames)
	}
}

func buildTransport(opts *RunOptions, initialState replica.Document) (transport.Transport, error) {
	if opts.Mock {
		initial := initialState
		if opts.MockInit != "" {
			doc, err := replica.ParseDocument([]byte(opts.MockInit))
			if err != nil {
				return nil, fmt.Errorf("parsing --mock-init: %w", err)
			}
			initial = doc
		}
		return transport.NewMock(opts.ID, initial), nil
	}

	return transport.NewHTTP(transport.HTTPConfig{
		BaseURL:     opts.Backend,
		ID:          opts.ID,
		Username:    opts.Username,
		Password:    opts.Password,
		ProxyURL:    opts.Proxy,
		DisablePush: opts.NoPush,
	})
}
