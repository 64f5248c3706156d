package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siniverse/taskbox/internal/journal"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskbox.db")

	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.StartSession(ctx, "box1"))
	require.NoError(t, j.Record(ctx, journal.KindPollChange, 3, ""))
	require.NoError(t, j.Record(ctx, journal.KindWriteConflict, 3, "candidate dropped"))
	return path
}

func TestJournalDumpText(t *testing.T) {
	path := seedJournal(t)

	stdout, _, err := execute(t, "journal", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, journal.KindSessionStart)
	assert.Contains(t, stdout, journal.KindWriteConflict)
	assert.Contains(t, stdout, "candidate dropped")
}

func TestJournalDumpJSON(t *testing.T) {
	path := seedJournal(t)

	stdout, _, err := execute(t, "--format", "json", "journal", path, "--box", "box1")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   []journalEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, journal.KindPollChange, resp.Data[1].Kind)
	assert.EqualValues(t, 3, resp.Data[1].Version)
}

func TestJournalFilterByBox(t *testing.T) {
	path := seedJournal(t)

	stdout, _, err := execute(t, "journal", path, "--box", "other")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no events recorded")
}

func TestJournalMissingDatabaseDirectory(t *testing.T) {
	_, _, err := execute(t, "journal", filepath.Join(t.TempDir(), "missing", "deep", "db.sqlite"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
