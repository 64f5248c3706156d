package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/siniverse/taskbox/internal/replica"
)

// snapshot converts a result into the canonical map serialized for golden
// comparison. Zero versions and empty details are dropped so golden files
// stay readable.
func snapshot(scenarioName string, result *Result) map[string]any {
	events := make([]any, len(result.Transcript))
	for i, ev := range result.Transcript {
		m := map[string]any{
			"seq": ev.Seq,
			"op":  ev.Op,
		}
		if ev.Version != 0 {
			m["version"] = ev.Version
		}
		if ev.Detail != "" {
			m["detail"] = ev.Detail
		}
		events[i] = m
	}

	return map[string]any{
		"scenario":   scenarioName,
		"transcript": events,
		"final": map[string]any{
			"version": result.FinalVersion,
			"value":   map[string]any(result.Final),
		},
	}
}

// RunWithGolden executes a scenario, evaluates its assertions, and
// compares the canonical transcript snapshot against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("running scenario %s: %v", scenario.Name, err)
	}
	if result.RunnerErr != nil {
		t.Fatalf("scenario %s: runner exited with error: %v", scenario.Name, result.RunnerErr)
	}
	for _, failure := range result.Failures {
		t.Errorf("scenario %s: %s", scenario.Name, failure)
	}

	data, err := replica.MarshalCanonical(snapshot(scenario.Name, result))
	if err != nil {
		t.Fatalf("marshaling transcript snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}
