// Package harness runs scenario-driven conformance tests against the real
// runner loop. A scenario wires a Runner to a simulated backend and a
// scripted timeline; every transport operation and callback invocation is
// appended to a transcript, which is asserted on directly and compared
// against golden files.
//
// Determinism comes from two pieces: a FakeClock that only moves when the
// transport's AwaitChange advances it, and a timeline consumed one step
// per runner sleep. No scenario ever sleeps for real.
package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
	"github.com/siniverse/taskbox/internal/runner"
	"github.com/siniverse/taskbox/internal/testutil"
	"github.com/siniverse/taskbox/internal/transport"
)

// Transcript op names, in the order a reader meets them in golden files.
const (
	OpRead           = "read"
	OpReadFailed     = "read-failed"
	OpNotDefined     = "not-defined"
	OpWriteOK        = "write-ok"
	OpWriteConflict  = "write-conflict"
	OpWriteFailed    = "write-failed"
	OpHint           = "hint"
	OpBackendSet     = "backend-set"
	OpNetworkDown    = "network-down"
	OpNetworkUp      = "network-up"
	OpCallbackRun    = "callback-run"
	OpCallbackChange = "callback-change"
)

// Event is one transcript entry.
type Event struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Version int64  `json:"version,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Result captures a scenario execution.
type Result struct {
	Transcript   []Event
	Final        replica.Document
	FinalVersion int64

	// RunnerErr is the runner's exit error. Normal timeline exhaustion
	// cancels the context and yields nil.
	RunnerErr error

	// Failures lists assertion failures. Empty means the scenario passed.
	Failures []string

	seq int64
}

// Passed reports whether the runner exited cleanly and every assertion
// held.
func (r *Result) Passed() bool {
	return r.RunnerErr == nil && len(r.Failures) == 0
}

func (r *Result) append(op string, version int64, detail string) {
	r.seq++
	r.Transcript = append(r.Transcript, Event{
		Seq:     r.seq,
		Op:      op,
		Version: version,
		Detail:  detail,
	})
}

// scenarioEpoch is the fixed starting instant of every scenario clock.
var scenarioEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// Run executes a scenario against a real Runner and evaluates its
// assertions. The returned error covers harness-level problems only;
// assertion failures land in Result.Failures.
func Run(scenario *Scenario) (*Result, error) {
	result := &Result{}
	clock := testutil.NewFakeClock(scenarioEpoch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &scriptedTransport{
		scenario: scenario,
		clock:    clock,
		cancel:   cancel,
		result:   result,
	}
	if scenario.Initial != nil {
		tr.defined = true
		tr.version = scenario.Initial.Version
		tr.value = replica.Document(scenario.Initial.Value).Clone()
	}

	r, err := runner.New(tr, scriptCallback(scenario.Callback, result), runner.Options{
		ID:            scenario.Box,
		RunInterval:   scenario.runInterval,
		PollInterval:  scenario.pollInterval,
		WriteInterval: scenario.writeInterval,
		InitialState:  scenario.initialDocument(),
		Clock:         clock,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}

	result.RunnerErr = r.Run(ctx)
	result.Final = tr.value.Clone()
	result.FinalVersion = tr.version

	result.Failures = EvaluateAssertions(result, scenario.Assertions)
	return result, nil
}

// scriptCallback builds the prop logic named by the scenario. Both
// scripts treat a backend change as pure notification and return nil.
func scriptCallback(kind string, result *Result) runner.Callback {
	return func(state replica.Document, backendChange bool) (replica.Document, error) {
		if backendChange {
			result.append(OpCallbackChange, 0, "")
			return nil, nil
		}
		result.append(OpCallbackRun, 0, "")
		if kind == CallbackNoop {
			return nil, nil
		}
		state["n"] = numberField(state, "n") + 1
		return state, nil
	}
}

func numberField(state replica.Document, key string) float64 {
	switch v := state[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// scriptedTransport is both the simulated backend store and the timeline
// driver. The runner loop is single-threaded, so no locking is needed.
type scriptedTransport struct {
	scenario *Scenario
	clock    *testutil.FakeClock
	cancel   context.CancelFunc
	result   *Result

	// Simulated backend replica.
	defined bool
	version int64
	value   replica.Document
	down    bool

	// Timeline cursor.
	next int
}

func (t *scriptedTransport) Read(ctx context.Context) (replica.Replica, error) {
	if t.down {
		t.result.append(OpReadFailed, 0, "")
		return replica.Replica{}, &transport.NetworkError{Op: "read", Err: errSimulatedOutage}
	}
	if !t.defined {
		t.result.append(OpNotDefined, 0, "")
		return replica.Replica{}, transport.ErrNotDefined
	}
	t.result.append(OpRead, t.version, "")
	return replica.Replica{ID: t.scenario.Box, Version: t.version, Value: t.value.Clone()}, nil
}

func (t *scriptedTransport) Write(ctx context.Context, candidate replica.Replica) transport.WriteResult {
	if t.down {
		t.result.append(OpWriteFailed, candidate.Version, "")
		return transport.WriteResult{
			Outcome: transport.WriteNetworkError,
			Err:     &transport.NetworkError{Op: "write", Err: errSimulatedOutage},
		}
	}
	if t.defined && candidate.Version != t.version {
		t.result.append(OpWriteConflict, candidate.Version, "")
		return transport.WriteResult{Outcome: transport.WriteConflict}
	}
	t.defined = true
	t.version++
	t.value = candidate.Value.Clone()
	t.result.append(OpWriteOK, t.version, "")
	return transport.WriteResult{
		Outcome: transport.WriteOK,
		Replica: replica.Replica{ID: t.scenario.Box, Version: t.version, Value: t.value.Clone()},
	}
}

// AwaitChange consumes one timeline step per call. Only an advance step
// lets the requested sleep elapse on the fake clock; the other steps model
// instantaneous external events that wake the runner early, exactly like a
// spurious inbox signal would. Timeline exhaustion stops the scenario.
func (t *scriptedTransport) AwaitChange(ctx context.Context, timeout time.Duration) (replica.PushHint, bool) {
	if t.next >= len(t.scenario.Timeline) {
		t.cancel()
		return replica.PushHint{}, false
	}
	step := t.scenario.Timeline[t.next]
	t.next++

	switch {
	case step.Advance:
		t.clock.Advance(timeout)

	case step.Push != nil:
		t.result.append(OpHint, step.Push.Version, "")
		return replica.PushHint{ID: t.scenario.Box, Version: step.Push.Version}, true

	case step.BackendSet != nil:
		t.version++
		t.value = replica.Document(step.BackendSet).Clone()
		t.defined = true
		t.result.append(OpBackendSet, t.version, "")

	case step.DropNetwork:
		t.down = true
		t.result.append(OpNetworkDown, 0, "")

	case step.RestoreNetwork:
		t.down = false
		t.result.append(OpNetworkUp, 0, "")
	}

	return replica.PushHint{}, false
}

func (t *scriptedTransport) Close() error { return nil }

var errSimulatedOutage = errors.New("simulated network outage")
