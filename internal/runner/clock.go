package runner

import "time"

// Clock abstracts wall-clock reads so cadence scheduling is testable.
// The runner never sleeps against the clock directly; its only suspension
// point is Transport.AwaitChange, which test transports pair with a fake
// clock to advance time deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
