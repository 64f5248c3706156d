package transport

import (
	"context"
	"sync"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// inbox is a single-slot, latest-wins mailbox between the push listener
// goroutine and the runner loop. The listener only ever calls put; the
// loop only ever calls await. A burst of hints coalesces into the newest
// one, which is all the loop needs: any hint just forces a poll.
type inbox struct {
	mu     sync.Mutex
	hint   replica.PushHint
	filled bool
	signal chan struct{} // buffered 1, coalesces notifications
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

// put replaces the slot with the latest hint and signals a waiter.
func (b *inbox) put(h replica.PushHint) {
	b.mu.Lock()
	b.hint = h
	b.filled = true
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// take removes and returns the slot contents.
func (b *inbox) take() (replica.PushHint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.filled {
		return replica.PushHint{}, false
	}
	h := b.hint
	b.hint = replica.PushHint{}
	b.filled = false
	return h, true
}

// await blocks up to timeout for a hint. A hint already in the slot is
// returned immediately. A non-positive timeout never blocks.
func (b *inbox) await(ctx context.Context, timeout time.Duration) (replica.PushHint, bool) {
	if h, ok := b.take(); ok {
		return h, true
	}
	if timeout <= 0 {
		return replica.PushHint{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-b.signal:
			if h, ok := b.take(); ok {
				return h, true
			}
			// Signal raced an earlier take; keep waiting.
		case <-timer.C:
			return replica.PushHint{}, false
		case <-ctx.Done():
			return replica.PushHint{}, false
		}
	}
}
