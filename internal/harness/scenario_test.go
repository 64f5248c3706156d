package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validScenarioYAML = `
name: sample
description: a minimal valid scenario
box: box1
callback: noop
run_interval: 100ms
initial:
  version: 1
  value:
    n: 0
timeline:
  - advance: true
assertions:
  - type: final_value
    value:
      n: 0
`

func TestLoadScenario(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, validScenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, "sample", scenario.Name)
	assert.Equal(t, "box1", scenario.Box)
	assert.Equal(t, CallbackNoop, scenario.Callback)
	assert.Len(t, scenario.Timeline, 1)
	assert.True(t, scenario.Timeline[0].Advance)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	// "assertion" (singular) is the classic typo.
	_, err := LoadScenario(writeScenario(t, `
name: typo
description: misspelled assertions key
box: box1
callback: noop
run_interval: 100ms
timeline:
  - advance: true
assertion:
  - type: final_value
    value: {}
`))
	assert.Error(t, err)
}

func TestLoadScenarioValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing name",
			yaml: `
description: d
box: box1
callback: noop
run_interval: 100ms
timeline: [{advance: true}]
assertions: [{type: final_value, value: {}}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing box",
			yaml: `
name: s
description: d
callback: noop
run_interval: 100ms
timeline: [{advance: true}]
assertions: [{type: final_value, value: {}}]
`,
			wantErr: "box is required",
		},
		{
			name: "unknown callback",
			yaml: `
name: s
description: d
box: box1
callback: fancy
run_interval: 100ms
timeline: [{advance: true}]
assertions: [{type: final_value, value: {}}]
`,
			wantErr: `unknown callback "fancy"`,
		},
		{
			name: "missing run interval",
			yaml: `
name: s
description: d
box: box1
callback: noop
timeline: [{advance: true}]
assertions: [{type: final_value, value: {}}]
`,
			wantErr: "run_interval is required",
		},
		{
			name: "bad duration",
			yaml: `
name: s
description: d
box: box1
callback: noop
run_interval: fast
timeline: [{advance: true}]
assertions: [{type: final_value, value: {}}]
`,
			wantErr: "run_interval",
		},
		{
			name: "empty timeline",
			yaml: `
name: s
description: d
box: box1
callback: noop
run_interval: 100ms
timeline: []
assertions: [{type: final_value, value: {}}]
`,
			wantErr: "timeline is required",
		},
		{
			name: "ambiguous timeline step",
			yaml: `
name: s
description: d
box: box1
callback: noop
run_interval: 100ms
timeline: [{advance: true, drop_network: true}]
assertions: [{type: final_value, value: {}}]
`,
			wantErr: "exactly one step field",
		},
		{
			name: "no assertions",
			yaml: `
name: s
description: d
box: box1
callback: noop
run_interval: 100ms
timeline: [{advance: true}]
assertions: []
`,
			wantErr: "assertions list is required",
		},
		{
			name: "unknown assertion type",
			yaml: `
name: s
description: d
box: box1
callback: noop
run_interval: 100ms
timeline: [{advance: true}]
assertions: [{type: trace_count, op: read}]
`,
			wantErr: `unknown assertion type "trace_count"`,
		},
		{
			name: "transcript_contains without op",
			yaml: `
name: s
description: d
box: box1
callback: noop
run_interval: 100ms
timeline: [{advance: true}]
assertions: [{type: transcript_contains}]
`,
			wantErr: "op is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
