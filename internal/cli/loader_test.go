package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStateFileJSON(t *testing.T) {
	path := writeFile(t, "state.json", `{"number": 7, "label": "x"}`)

	doc, err := LoadStateFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7.0, doc["number"])
	assert.Equal(t, "x", doc["label"])
}

func TestLoadStateFileCUE(t *testing.T) {
	path := writeFile(t, "state.cue", `
base: 300
value:  base + 30.5
config: sineSpeed: 60
`)

	doc, err := LoadStateFile(path)
	require.NoError(t, err)
	assert.Equal(t, 330.5, doc["value"])
	config, ok := doc["config"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 60, config["sineSpeed"])
}

func TestLoadStateFileErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantCode string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
			wantCode: ErrCodeNotFound,
		},
		{
			name:     "malformed json",
			path:     func(t *testing.T) string { return writeFile(t, "bad.json", `{"n": `) },
			wantCode: ErrCodeBadInput,
		},
		{
			name:     "unsupported extension",
			path:     func(t *testing.T) string { return writeFile(t, "state.yaml", "n: 1") },
			wantCode: ErrCodeBadInput,
		},
		{
			name:     "cue not concrete",
			path:     func(t *testing.T) string { return writeFile(t, "open.cue", `value: int`) },
			wantCode: ErrCodeNotConcrete,
		},
		{
			name:     "cue not an object",
			path:     func(t *testing.T) string { return writeFile(t, "scalar.cue", `42`) },
			wantCode: ErrCodeNotObject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStateFile(tt.path(t))
			require.Error(t, err)
			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.wantCode, loadErr.Code)
		})
	}
}

func TestValidateStateFileAgainstSchema(t *testing.T) {
	schema := writeFile(t, "schema.cue", `
value: number
config: {
	sineSpeed: >0
}
`)

	good := writeFile(t, "good.json", `{"value": 330.5, "config": {"sineSpeed": 60}}`)
	_, err := ValidateStateFile(good, schema)
	assert.NoError(t, err)

	bad := writeFile(t, "bad.json", `{"value": 330.5, "config": {"sineSpeed": -1}}`)
	_, err = ValidateStateFile(bad, schema)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeSchemaViolation, loadErr.Code)
}

func TestValidateStateFileMissingSchema(t *testing.T) {
	doc := writeFile(t, "state.json", `{"n": 1}`)
	_, err := ValidateStateFile(doc, filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}
