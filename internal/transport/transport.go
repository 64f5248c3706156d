// Package transport abstracts how a prop controller reaches the backend
// store: read the current replica, write a candidate under optimistic
// concurrency, and wait for a push hint. Two implementations are provided:
// an HTTP transport with a server-sent-events push subscription, and a
// file-injection mock for offline development.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// ErrNotDefined is returned by Read when the backend has no document for
// the replica id yet. The runner reacts with an initializing write.
var ErrNotDefined = errors.New("replica not defined in backend")

// NetworkError wraps a transient I/O failure. Network errors are retried
// at the owning cadence's next tick and never escalated past startup.
type NetworkError struct {
	Op  string // "read", "write", "subscribe"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// WriteOutcome tags the result of a Write attempt. The scheduler branches
// on this tag; conflicts are an expected outcome, not an error condition.
type WriteOutcome int

const (
	// WriteOK means the backend accepted the candidate. Result.Replica
	// carries the authoritative stored replica (version possibly bumped).
	WriteOK WriteOutcome = iota + 1
	// WriteConflict means the candidate's version was stale relative to
	// the backend. The candidate is rejected; the caller must re-poll.
	WriteConflict
	// WriteNetworkError means the attempt failed with a transient I/O
	// error. Result.Err carries the cause; the write may be retried.
	WriteNetworkError
)

// WriteResult is the discriminated result of a Write attempt.
type WriteResult struct {
	Outcome WriteOutcome
	Replica replica.Replica // valid when Outcome == WriteOK
	Err     error           // set when Outcome == WriteNetworkError
}

// Transport is the backend access contract consumed by the runner.
//
// Implementations must be safe for use from a single goroutine; the runner
// never calls two methods concurrently.
type Transport interface {
	// Read fetches the current replica. Returns ErrNotDefined when the
	// backend holds no document for this id, or a *NetworkError on I/O
	// failure.
	Read(ctx context.Context) (replica.Replica, error)

	// Write submits a candidate replica under optimistic concurrency.
	Write(ctx context.Context, candidate replica.Replica) WriteResult

	// AwaitChange blocks up to timeout, returning early with (hint, true)
	// when the push channel delivers a hint for this replica's id. A
	// non-positive timeout returns immediately. Hints are informational
	// only; callers must re-confirm via Read.
	AwaitChange(ctx context.Context, timeout time.Duration) (replica.PushHint, bool)

	// Close releases transport resources (sockets, subscriptions).
	Close() error
}
