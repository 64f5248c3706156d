// Package props contains the reference prop controllers shipped with the
// taskbox binary. Each prop is a pure state transformation plugged into
// the runner; hardware access goes through the PinBank abstraction so the
// props run unchanged against simulated pins.
package props

import (
	"time"

	"github.com/siniverse/taskbox/internal/replica"
	"github.com/siniverse/taskbox/internal/runner"
)

// Prop bundles a callback with its preferred cadences and the state used
// to seed an undefined backend box.
type Prop struct {
	Name          string
	RunInterval   time.Duration
	WriteInterval time.Duration
	InitialState  replica.Document
	Callback      runner.Callback
}
