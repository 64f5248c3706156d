package harness

import (
	"fmt"

	"github.com/siniverse/taskbox/internal/replica"
)

// EvaluateAssertions checks every scenario assertion against the result
// and returns one failure message per violated assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTranscriptContains:
			err = assertTranscriptContains(result, &a)
		case AssertTranscriptOrder:
			err = assertTranscriptOrder(result, &a)
		case AssertFinalValue:
			err = assertFinalValue(result, &a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

// assertTranscriptContains checks that at least one event matches the op,
// and the version when one is specified.
func assertTranscriptContains(result *Result, a *Assertion) error {
	for _, ev := range result.Transcript {
		if ev.Op != a.Op {
			continue
		}
		if a.Version != nil && ev.Version != *a.Version {
			continue
		}
		return nil
	}
	if a.Version != nil {
		return fmt.Errorf("no %q event with version %d in transcript", a.Op, *a.Version)
	}
	return fmt.Errorf("no %q event in transcript", a.Op)
}

// assertTranscriptOrder checks that the listed ops appear as a
// subsequence of the transcript: in order, not necessarily adjacent.
func assertTranscriptOrder(result *Result, a *Assertion) error {
	want := 0
	for _, ev := range result.Transcript {
		if want < len(a.Ops) && ev.Op == a.Ops[want] {
			want++
		}
	}
	if want < len(a.Ops) {
		return fmt.Errorf("op %q (position %d of expected order) not found after its predecessors",
			a.Ops[want], want)
	}
	return nil
}

// assertFinalValue compares the backend's final document under canonical
// equality.
func assertFinalValue(result *Result, a *Assertion) error {
	want := replica.Document(a.Value)
	if !replica.Equal(result.Final, want) {
		wantJSON, _ := replica.MarshalCanonical(want)
		gotJSON, _ := replica.MarshalCanonical(result.Final)
		return fmt.Errorf("final backend value mismatch:\n  want: %s\n  got:  %s", wantJSON, gotJSON)
	}
	return nil
}
