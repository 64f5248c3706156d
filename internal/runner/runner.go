// Package runner implements the state-synchronization engine shared by all
// prop controllers: a single-threaded loop that keeps a cached, versioned
// replica reconciled against the backend store while driving prop logic on
// its own cadence.
//
// Three independent cadences share the loop:
//   - run: invoke the prop callback
//   - poll: re-read the backend replica and detect external changes
//   - write: push locally-changed state back under optimistic concurrency
//
// Poll, run, and write never overlap; a slow backend call delays all
// cadences for this prop. That trade-off is deliberate — props are small
// and correctness under interleaving matters more than throughput.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/siniverse/taskbox/internal/journal"
	"github.com/siniverse/taskbox/internal/replica"
	"github.com/siniverse/taskbox/internal/transport"
)

// DefaultPollInterval applies when the caller does not set PollInterval.
const DefaultPollInterval = 10 * time.Second

// Callback is the prop-specific state transformation. It receives a deep
// copy of the cached value, so mutating state in place and returning it is
// equivalent to building a fresh document. Returning nil (or a value equal
// to the input) means "no local change" and schedules no write. When
// backendChange is true, state is the value just obtained from a poll —
// props typically re-initialize hardware on that signal.
//
// A non-nil error is fatal: defective prop logic must stop the prop rather
// than keep running against possibly-corrupted local state.
type Callback func(state replica.Document, backendChange bool) (replica.Document, error)

// Options configures a Runner. Each runner owns its options exclusively;
// never share mutable documents between runner instances.
type Options struct {
	// ID is the backend box id. Required.
	ID string

	// RunInterval is the callback cadence. Required.
	RunInterval time.Duration

	// PollInterval is the backend re-read cadence.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// WriteInterval throttles writes of dirty state. Zero (the default)
	// writes as soon as state is dirty.
	WriteInterval time.Duration

	// InitialState seeds the backend when it has no document for ID yet.
	InitialState replica.Document

	// Journal, when non-nil, records state transitions for diagnostics.
	Journal *journal.Journal

	// Clock defaults to the system clock. Tests inject a fake.
	Clock Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) validate() error {
	if o.ID == "" {
		return newConfigError("'id' is not defined")
	}
	if o.RunInterval <= 0 {
		return newConfigError("'run interval' is not defined")
	}
	if o.PollInterval < 0 || o.WriteInterval < 0 {
		return newConfigError("intervals must not be negative")
	}
	return nil
}

// Runner drives one prop's synchronization loop. Not safe for concurrent
// use; Run must be called from exactly one goroutine.
type Runner struct {
	tr       transport.Transport
	callback Callback
	opts     Options
	clock    Clock
	logger   *slog.Logger

	// Cached state: the working value, its last confirmed version, and
	// whether the callback has produced a value not yet written back.
	value   replica.Document
	version int64
	dirty   bool

	// baseline is the last replica seen from the backend. nil means the
	// next poll treats whatever it reads as an external change,
	// regardless of value equality — the post-conflict resync path.
	baseline *replica.Replica
}

// New validates options and builds a runner around the given transport and
// callback. Configuration problems are fatal before the loop ever starts.
func New(tr transport.Transport, callback Callback, opts Options) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if callback == nil {
		return nil, newConfigError("'callback' is not defined")
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		tr:       tr,
		callback: callback,
		opts:     opts,
		clock:    clock,
		logger:   logger.With("box", opts.ID),
	}, nil
}

// Version returns the last confirmed replica version.
func (r *Runner) Version() int64 { return r.version }

// Value returns a deep copy of the cached working value.
func (r *Runner) Value() replica.Document { return r.value.Clone() }

// Run acquires the initial replica and enters the main loop until ctx is
// cancelled or a fatal error occurs. The transport is closed on exit.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if err := r.tr.Close(); err != nil {
			r.logger.Error("closing transport", "error", err)
		}
	}()

	if err := r.acquire(ctx); err != nil {
		return err
	}

	if j := r.opts.Journal; j != nil {
		if err := j.StartSession(ctx, r.opts.ID); err != nil {
			return newStartupError("starting journal session", err)
		}
	}

	now := r.clock.Now()
	nextRun := now
	nextPoll := now
	nextWrite := now

	r.logger.Info("runner started", "version", r.version,
		"run_interval", r.opts.RunInterval, "poll_interval", r.opts.PollInterval)

	for {
		if ctx.Err() != nil {
			r.logger.Info("runner stopping: context cancelled")
			return nil
		}

		// The await is the loop's sole suspension point. Sleep until the
		// earliest of the run and poll cadences; a push hint wakes us
		// early but is never applied directly — a valid hint only pulls
		// the poll cadence forward so the change is re-confirmed
		// authoritatively.
		wakeAt := minTime(nextRun, nextPoll)
		if hint, ok := r.tr.AwaitChange(ctx, wakeAt.Sub(r.clock.Now())); ok {
			if r.hintIsNews(hint) {
				r.logger.Debug("push hint accepted", "hint_version", hint.Version)
				nextPoll = r.clock.Now()
			}
		}

		if !r.clock.Now().Before(nextPoll) {
			if err := r.poll(ctx); err != nil {
				return err
			}
			nextPoll = nextTick(nextPoll, r.opts.PollInterval, r.clock.Now())
		}

		if !r.clock.Now().Before(nextRun) {
			if err := r.invokeCallback(false); err != nil {
				return err
			}
			nextRun = nextTick(nextRun, r.opts.RunInterval, r.clock.Now())
		}

		if r.dirty && !r.clock.Now().Before(nextWrite) {
			if conflicted := r.write(ctx); conflicted {
				// Resync before any further write: the very next
				// iteration polls, and the cleared baseline makes that
				// poll an unconditional external change.
				nextPoll = r.clock.Now()
			}
			nextWrite = r.clock.Now().Add(r.opts.WriteInterval)
		}
	}
}

// acquire obtains the initial replica, seeding the backend with
// InitialState when it has no document yet. Failure here is fatal: the
// runner cannot operate without a known state. The baseline is left unset
// so the first poll invokes the callback with backendChange=true, giving
// props their initialization signal.
func (r *Runner) acquire(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		got, err := r.tr.Read(ctx)
		switch {
		case err == nil:
			r.value = got.Value.Clone()
			r.version = got.Version
			return nil
		case errors.Is(err, transport.ErrNotDefined):
			// Fall through to the initializing write below.
		default:
			return newStartupError("reading initial replica", err)
		}

		r.logger.Info("backend has no state for box, writing initial state")
		res := r.tr.Write(ctx, replica.Replica{
			ID:    r.opts.ID,
			Value: r.opts.InitialState.Clone(),
		})
		switch res.Outcome {
		case transport.WriteOK:
			r.value = res.Replica.Value.Clone()
			r.version = res.Replica.Version
			return nil
		case transport.WriteConflict:
			// Someone initialized the box between our read and write;
			// re-read to adopt their state.
			if attempt >= 2 {
				return newStartupError("initializing write kept conflicting", nil)
			}
		case transport.WriteNetworkError:
			return newStartupError("writing initial replica", res.Err)
		}
	}
}

// poll re-reads the backend replica and reconciles. An observed change
// replaces the cached state wholesale (remote wins, local dirt discarded)
// and notifies the callback with backendChange=true. Network failures are
// non-fatal here: the runner keeps operating on the last-known-good state.
func (r *Runner) poll(ctx context.Context) error {
	got, err := r.tr.Read(ctx)
	if err != nil {
		// ErrNotDefined after startup means the backend lost the box;
		// treated like any transient failure, retried next tick.
		r.logger.Warn("poll failed, keeping cached state", "error", err)
		r.journalEvent(ctx, journal.KindNetworkError, r.version, err.Error())
		return nil
	}

	changed := r.baseline == nil || !replica.Equal(got.Value, r.baseline.Value)
	r.baseline = &got

	if !changed {
		// Version may still advance (an identical write elsewhere);
		// track it so the next write's precondition stays fresh.
		if got.Version > r.version {
			r.version = got.Version
		}
		return nil
	}

	r.logger.Info("backend state changed", "version", got.Version)
	r.journalEvent(ctx, journal.KindPollChange, got.Version, "")

	r.value = got.Value.Clone()
	r.version = got.Version
	r.dirty = false
	return r.invokeCallback(true)
}

// write pushes the dirty cached value. Reports whether the attempt hit a
// version conflict, in which case the candidate is dropped outright and
// the baseline cleared so the next poll resyncs unconditionally.
func (r *Runner) write(ctx context.Context) (conflicted bool) {
	res := r.tr.Write(ctx, replica.Replica{
		ID:      r.opts.ID,
		Version: r.version,
		Value:   r.value,
	})

	switch res.Outcome {
	case transport.WriteOK:
		r.value = res.Replica.Value.Clone()
		r.version = res.Replica.Version
		r.baseline = &res.Replica
		r.dirty = false
		r.logger.Debug("write confirmed", "version", r.version)
		r.journalEvent(ctx, journal.KindWriteOK, r.version, "")
		return false

	case transport.WriteConflict:
		r.logger.Info("write conflict, dropping local changes and resyncing")
		r.journalEvent(ctx, journal.KindWriteConflict, r.version, "candidate dropped")
		r.dirty = false
		r.baseline = nil
		return true

	default:
		r.logger.Warn("write failed, will retry", "error", res.Err)
		r.journalEvent(ctx, journal.KindNetworkError, r.version, res.Err.Error())
		return false
	}
}

// invokeCallback hands a deep copy of the cached value to prop logic and
// adopts the result when it differs.
func (r *Runner) invokeCallback(backendChange bool) error {
	newState, err := r.callback(r.value.Clone(), backendChange)
	if err != nil {
		return newCallbackError(err)
	}
	if newState == nil || replica.Equal(newState, r.value) {
		return nil
	}
	r.value = newState
	r.dirty = true
	return nil
}

func (r *Runner) journalEvent(ctx context.Context, kind string, version int64, detail string) {
	if r.opts.Journal == nil {
		return
	}
	if err := r.opts.Journal.Record(ctx, kind, version, detail); err != nil {
		r.logger.Warn("journal record failed", "kind", kind, "error", err)
	}
}

// nextTick advances a cadence by its interval, clamping to now when the
// schedule has fallen far behind. Without the clamp a long stall (slow
// network call, suspended host) would be followed by a burst of rapid
// catch-up ticks.
func nextTick(prev time.Time, interval time.Duration, now time.Time) time.Time {
	next := prev.Add(interval)
	if next.Before(now.Add(-interval)) {
		return now
	}
	return next
}

// hintIsNews validates a push hint: it must concern this box and promise a
// version newer than the last seen baseline. Stale or foreign hints are
// discarded silently.
func (r *Runner) hintIsNews(hint replica.PushHint) bool {
	if hint.ID != r.opts.ID {
		return false
	}
	if r.baseline == nil {
		return true
	}
	return hint.Version > r.baseline.Version
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
