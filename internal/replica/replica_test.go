package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentCloneIsDeep(t *testing.T) {
	original := Document{
		"fuses": []any{1.0, 0.0, 1.0},
		"config": map[string]any{
			"measure": []any{3.0, 14.0},
		},
	}

	clone := original.Clone()
	require.True(t, Equal(original, clone))

	// Mutating the clone must not leak into the original.
	clone["fuses"].([]any)[0] = 0.0
	clone["config"].(map[string]any)["measure"] = []any{}

	assert.Equal(t, 1.0, original["fuses"].([]any)[0])
	assert.Len(t, original["config"].(map[string]any)["measure"], 2)
}

func TestDocumentCloneNil(t *testing.T) {
	var d Document
	assert.Nil(t, d.Clone())
}

func TestReplicaCloneDetachesValue(t *testing.T) {
	r := Replica{ID: "box1", Version: 3, Value: Document{"number": 7.0}}
	c := r.Clone()
	c.Value["number"] = 8.0

	assert.Equal(t, 7.0, r.Value["number"])
	assert.Equal(t, "box1", c.ID)
	assert.Equal(t, int64(3), c.Version)
}

func TestDocumentDecodeEncodeRoundTrip(t *testing.T) {
	type fuseState struct {
		Fuses []int `json:"fuses"`
		Blow  []int `json:"blow,omitempty"`
	}

	doc := Document{"fuses": []any{1.0, 0.0}, "blow": []any{2.0}}

	var s fuseState
	require.NoError(t, doc.Decode(&s))
	assert.Equal(t, []int{1, 0}, s.Fuses)
	assert.Equal(t, []int{2}, s.Blow)

	s.Blow = nil
	out, err := Encode(s)
	require.NoError(t, err)
	assert.True(t, Equal(Document{"fuses": []any{1.0, 0.0}}, out))
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"number": 7}`))
	require.NoError(t, err)
	assert.Equal(t, 7.0, doc["number"])

	_, err = ParseDocument([]byte(`[1,2]`))
	assert.Error(t, err)
}
