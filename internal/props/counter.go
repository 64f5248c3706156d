package props

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// Counter is the minimal demonstration prop: each run tick it increments
// "number" with probability 0.5. With a fixed seed the resulting count is
// fully deterministic, which the conformance tests rely on.
func Counter(seed int64) *Prop {
	rng := rand.New(rand.NewSource(seed))

	callback := func(state replica.Document, backendChange bool) (replica.Document, error) {
		if backendChange {
			return nil, nil
		}
		if rng.Float64() > 0.5 {
			n, _ := state["number"].(float64)
			state["number"] = n + 1
		}
		slog.Debug("counter tick", "number", state["number"])
		return state, nil
	}

	return &Prop{
		Name:         "counter",
		RunInterval:  500 * time.Millisecond,
		InitialState: replica.Document{"number": 0.0},
		Callback:     callback,
	}
}
