package transport

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// MockStateFile returns the conventional injection file name for a replica
// id. Writing a JSON document to this file simulates an external backend
// edit; the mock transport applies and deletes it on the next read/write.
func MockStateFile(id string) string {
	return "backend-mock-" + id + ".json"
}

// Mock is an in-memory stand-in for the backend store, for developing
// props without a server. The injection file is the only state-injection
// path; there is no push simulation.
type Mock struct {
	mu      sync.Mutex
	current replica.Replica
	file    string
	logger  *slog.Logger
}

// NewMock creates a mock backend seeded with the given initial value at
// version 0.
func NewMock(id string, initial replica.Document) *Mock {
	m := &Mock{
		current: replica.Replica{ID: id, Version: 0, Value: initial.Clone()},
		file:    MockStateFile(id),
		logger:  slog.Default().With("transport", "mock", "box", id),
	}
	m.logger.Info("mock backend ready", "inject_file", m.file)
	return m
}

// Read returns the current mock replica, applying a pending injection
// first if one exists.
func (m *Mock) Read(_ context.Context) (replica.Replica, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applyInjection()
	return m.current.Clone(), nil
}

// Write stores the candidate and bumps the version. If an injection file
// raced this write, the injected value wins and the candidate is rejected
// with WriteConflict, mirroring the backend's optimistic concurrency.
func (m *Mock) Write(_ context.Context, candidate replica.Replica) WriteResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyInjection() {
		m.logger.Info("external edit raced write, rejecting candidate")
		return WriteResult{Outcome: WriteConflict}
	}

	m.current = replica.Replica{
		ID:      m.current.ID,
		Version: m.current.Version + 1,
		Value:   candidate.Value.Clone(),
	}
	m.logger.Debug("stored candidate", "version", m.current.Version)
	return WriteResult{Outcome: WriteOK, Replica: m.current.Clone()}
}

// AwaitChange is a plain timed sleep; the mock delivers no push hints.
func (m *Mock) AwaitChange(ctx context.Context, timeout time.Duration) (replica.PushHint, bool) {
	if timeout <= 0 {
		return replica.PushHint{}, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return replica.PushHint{}, false
}

// Close is a no-op for the mock.
func (m *Mock) Close() error { return nil }

// applyInjection replaces the current value with the injection file's
// contents, if present, then removes the file. Reports whether an
// injection was applied. Caller holds m.mu.
func (m *Mock) applyInjection() bool {
	data, err := os.ReadFile(m.file)
	if err != nil {
		return false
	}

	doc, err := replica.ParseDocument(data)
	if err != nil {
		m.logger.Warn("ignoring malformed injection file", "file", m.file, "error", err)
		_ = os.Remove(m.file)
		return false
	}

	_ = os.Remove(m.file)
	m.current = replica.Replica{
		ID:      m.current.ID,
		Version: m.current.Version + 1,
		Value:   doc,
	}
	m.logger.Info("applied external edit", "version", m.current.Version)
	return true
}
