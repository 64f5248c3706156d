package transport

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siniverse/taskbox/internal/replica"
)

func TestMockRoundTrip(t *testing.T) {
	chdir(t, t.TempDir())
	m := NewMock("box1", replica.Document{"number": 0.0})
	ctx := context.Background()

	candidate := replica.Replica{ID: "box1", Value: replica.Document{"number": 7.0}}
	res := m.Write(ctx, candidate)
	require.Equal(t, WriteOK, res.Outcome)
	assert.Equal(t, int64(1), res.Replica.Version)

	// Writing S then immediately reading (no injection file) returns exactly S.
	got, err := m.Read(ctx)
	require.NoError(t, err)
	assert.True(t, replica.Equal(candidate.Value, got.Value))
	assert.Equal(t, int64(1), got.Version)
}

func TestMockInitialRead(t *testing.T) {
	chdir(t, t.TempDir())
	m := NewMock("box1", replica.Document{"number": 3.0})

	got, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "box1", got.ID)
	assert.Equal(t, int64(0), got.Version)
	assert.Equal(t, 3.0, got.Value["number"])
}

func TestMockReadAppliesInjectionFile(t *testing.T) {
	chdir(t, t.TempDir())
	m := NewMock("box1", replica.Document{"number": 0.0})

	require.NoError(t, os.WriteFile(MockStateFile("box1"), []byte(`{"number": 42}`), 0o644))

	got, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.Value["number"])
	assert.Equal(t, int64(1), got.Version)

	// The injection file is consumed.
	_, statErr := os.Stat(MockStateFile("box1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMockWriteConflictsWithInjection(t *testing.T) {
	chdir(t, t.TempDir())
	m := NewMock("box1", replica.Document{"number": 0.0})
	ctx := context.Background()

	require.NoError(t, os.WriteFile(MockStateFile("box1"), []byte(`{"number": 99}`), 0o644))

	res := m.Write(ctx, replica.Replica{ID: "box1", Value: replica.Document{"number": 1.0}})
	assert.Equal(t, WriteConflict, res.Outcome)

	// The injected value won; the rejected candidate never landed.
	got, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.Value["number"])
}

func TestMockReadReturnsDetachedCopy(t *testing.T) {
	chdir(t, t.TempDir())
	m := NewMock("box1", replica.Document{"number": 0.0})
	ctx := context.Background()

	first, err := m.Read(ctx)
	require.NoError(t, err)
	first.Value["number"] = 123.0

	second, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, second.Value["number"])
}

func TestMockAwaitChangeSleeps(t *testing.T) {
	chdir(t, t.TempDir())
	m := NewMock("box1", nil)

	start := time.Now()
	_, ok := m.AwaitChange(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	// Non-positive timeout returns immediately.
	_, ok = m.AwaitChange(context.Background(), 0)
	assert.False(t, ok)
}
