package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siniverse/taskbox/internal/replica"
)

// Scenario defines a conformance scenario for the runner loop. A scenario
// starts a real Runner against a simulated backend, drives it through a
// scripted timeline, and asserts on the resulting transcript.
type Scenario struct {
	// Name uniquely identifies this scenario. Doubles as the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Box is the backend box id the runner syncs against.
	Box string `yaml:"box"`

	// Callback selects the scripted prop logic: "noop" never changes
	// state, "increment" bumps the "n" field on every run tick.
	Callback string `yaml:"callback"`

	// Cadences as Go duration strings. RunInterval is required.
	RunInterval   string `yaml:"run_interval"`
	PollInterval  string `yaml:"poll_interval,omitempty"`
	WriteInterval string `yaml:"write_interval,omitempty"`

	// Initial seeds the simulated backend. When nil the backend starts
	// undefined and the runner performs its initializing write.
	Initial *InitialReplica `yaml:"initial,omitempty"`

	// InitialState is the document the runner seeds an undefined backend
	// with.
	InitialState map[string]any `yaml:"initial_state,omitempty"`

	// Timeline is consumed one step per runner sleep. When it runs out
	// the scenario stops the runner.
	Timeline []TimelineStep `yaml:"timeline"`

	// Assertions validate the transcript and the final backend value.
	Assertions []Assertion `yaml:"assertions"`

	runInterval   time.Duration
	pollInterval  time.Duration
	writeInterval time.Duration
}

// InitialReplica is the backend's starting replica.
type InitialReplica struct {
	Version int64          `yaml:"version"`
	Value   map[string]any `yaml:"value"`
}

// TimelineStep is one scripted event. Exactly one field must be set.
type TimelineStep struct {
	// Advance lets the pending cadence elapse with no external activity.
	Advance bool `yaml:"advance,omitempty"`

	// BackendSet applies an external edit: the backend value is replaced
	// and its version incremented, as if another client wrote.
	BackendSet map[string]any `yaml:"backend_set,omitempty"`

	// Push delivers a push hint carrying this version. The hint wakes
	// the runner without letting time pass.
	Push *PushStep `yaml:"push,omitempty"`

	// DropNetwork / RestoreNetwork toggle simulated backend reachability.
	DropNetwork    bool `yaml:"drop_network,omitempty"`
	RestoreNetwork bool `yaml:"restore_network,omitempty"`
}

// PushStep carries the hinted version.
type PushStep struct {
	Version int64 `yaml:"version"`
}

// Assertion validates the transcript or final backend state.
type Assertion struct {
	// Type is one of transcript_contains, transcript_order, final_value.
	Type string `yaml:"type"`

	// Op is the transcript op to look for (transcript_contains).
	Op string `yaml:"op,omitempty"`

	// Version, when set, must match the event's version
	// (transcript_contains).
	Version *int64 `yaml:"version,omitempty"`

	// Ops is the expected op subsequence (transcript_order).
	Ops []string `yaml:"ops,omitempty"`

	// Value is the expected final backend document (final_value).
	Value map[string]any `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertTranscriptContains = "transcript_contains"
	AssertTranscriptOrder    = "transcript_order"
	AssertFinalValue         = "final_value"
)

// Callback script names.
const (
	CallbackNoop      = "noop"
	CallbackIncrement = "increment"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping a step.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Box == "" {
		return fmt.Errorf("box is required")
	}
	switch s.Callback {
	case CallbackNoop, CallbackIncrement:
	case "":
		return fmt.Errorf("callback is required")
	default:
		return fmt.Errorf("unknown callback %q", s.Callback)
	}

	var err error
	if s.runInterval, err = parseInterval("run_interval", s.RunInterval, true); err != nil {
		return err
	}
	if s.pollInterval, err = parseInterval("poll_interval", s.PollInterval, false); err != nil {
		return err
	}
	if s.writeInterval, err = parseInterval("write_interval", s.WriteInterval, false); err != nil {
		return err
	}

	if len(s.Timeline) == 0 {
		return fmt.Errorf("timeline is required and must be non-empty")
	}
	for i, step := range s.Timeline {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func parseInterval(name, value string, required bool) (time.Duration, error) {
	if value == "" {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

func validateStep(index int, step *TimelineStep) error {
	set := 0
	if step.Advance {
		set++
	}
	if step.BackendSet != nil {
		set++
	}
	if step.Push != nil {
		set++
	}
	if step.DropNetwork {
		set++
	}
	if step.RestoreNetwork {
		set++
	}
	if set != 1 {
		return fmt.Errorf("timeline[%d]: exactly one step field must be set", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTranscriptContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for transcript_contains", index)
		}
	case AssertTranscriptOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for transcript_order", index)
		}
	case AssertFinalValue:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for final_value", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// initialDocument returns the runner's seed document for an undefined
// backend.
func (s *Scenario) initialDocument() replica.Document {
	if s.InitialState == nil {
		return replica.Document{}
	}
	return replica.Document(s.InitialState).Clone()
}
