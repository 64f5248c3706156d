package props

import (
	"fmt"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// Wires maps which panel pins are physically connected to one another by
// driving each pin high in turn and sampling the whole bank. The result
// goes to state["connected"] as a map keyed "i-j" (i < j).

func defaultWireState() replica.Document {
	pins := make([]any, 0, 24)
	for pin := 4; pin <= 27; pin++ {
		pins = append(pins, float64(pin))
	}
	return replica.Document{
		"connected": map[string]any{},
		"config":    map[string]any{"pins": pins},
	}
}

// Wires builds the connected-wires prop on top of bank.
func Wires(bank PinBank) *Prop {
	callback := func(state replica.Document, backendChange bool) (replica.Document, error) {
		config, _ := state["config"].(map[string]any)
		pins := intSlice(config["pins"])

		if backendChange {
			for _, pin := range pins {
				bank.SetInput(pin, PullDown)
			}
		}

		state["connected"] = scanConnections(bank, pins)
		return state, nil
	}

	return &Prop{
		Name:         "wires",
		RunInterval:  500 * time.Millisecond,
		InitialState: defaultWireState(),
		Callback:     callback,
	}
}

func scanConnections(bank PinBank, pins []int) map[string]any {
	conns := make(map[string]any)
	for _, i := range pins {
		bank.SetOutput(i, true)
		vals := bank.ReadBank()
		bank.SetInput(i, PullDown)
		for _, j := range pins {
			if i >= j {
				continue
			}
			if vals&(1<<j) != 0 {
				conns[fmt.Sprintf("%d-%d", i, j)] = true
			}
		}
	}
	return conns
}
