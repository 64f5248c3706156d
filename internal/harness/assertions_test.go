package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siniverse/taskbox/internal/replica"
)

func sampleResult() *Result {
	return &Result{
		Transcript: []Event{
			{Seq: 1, Op: OpRead, Version: 1},
			{Seq: 2, Op: OpCallbackRun},
			{Seq: 3, Op: OpWriteOK, Version: 2},
			{Seq: 4, Op: OpCallbackRun},
			{Seq: 5, Op: OpWriteConflict, Version: 2},
			{Seq: 6, Op: OpRead, Version: 3},
		},
		Final:        replica.Document{"n": 3.0},
		FinalVersion: 3,
	}
}

func int64p(v int64) *int64 { return &v }

func TestTranscriptContains(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantFail  bool
	}{
		{
			name:      "op present",
			assertion: Assertion{Type: AssertTranscriptContains, Op: OpWriteConflict},
		},
		{
			name:      "op with matching version",
			assertion: Assertion{Type: AssertTranscriptContains, Op: OpWriteOK, Version: int64p(2)},
		},
		{
			name:      "op absent",
			assertion: Assertion{Type: AssertTranscriptContains, Op: OpWriteFailed},
			wantFail:  true,
		},
		{
			name:      "version mismatch",
			assertion: Assertion{Type: AssertTranscriptContains, Op: OpWriteOK, Version: int64p(9)},
			wantFail:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if tt.wantFail {
				assert.Len(t, failures, 1)
			} else {
				assert.Empty(t, failures)
			}
		})
	}
}

func TestTranscriptOrder(t *testing.T) {
	// Subsequence match: intervening events are allowed.
	failures := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertTranscriptOrder, Ops: []string{OpRead, OpWriteConflict, OpRead}},
	})
	assert.Empty(t, failures)

	failures = EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertTranscriptOrder, Ops: []string{OpWriteConflict, OpWriteOK}},
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "write-ok")
}

func TestFinalValue(t *testing.T) {
	failures := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertFinalValue, Value: map[string]any{"n": 3}},
	})
	assert.Empty(t, failures, "canonical equality treats 3 and 3.0 alike")

	failures = EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertFinalValue, Value: map[string]any{"n": 4}},
	})
	assert.Len(t, failures, 1)
}

func TestMultipleFailuresAreCollected(t *testing.T) {
	failures := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertTranscriptContains, Op: OpHint},
		{Type: AssertFinalValue, Value: map[string]any{"n": 0}},
	})
	assert.Len(t, failures, 2)
}
