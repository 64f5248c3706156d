package props

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// Fuses monitors a board of physical fuses and blows them on command.
// state["fuses"] reports 0 (blown) or 1 (intact) per measurement pin;
// writing state["blow"] with fuse indexes from the backend blows those
// fuses in random order, after which the key is removed.

const (
	fuseBlowTime    = 250 * time.Millisecond
	fuseSafetyDelay = 50 * time.Millisecond
)

type fuseConfig struct {
	Blowing []int `json:"blowing"`
	Measure []int `json:"measure"`
}

// Default pin wiring of the physical fuse board.
var (
	defaultBlowingPins = []int{2, 4, 15, 18, 22, 24, 9, 11, 7, 6, 13, 16}
	defaultMeasurePins = []int{3, 14, 17, 27, 23, 10, 25, 8, 5, 12, 19, 26}
)

// DefaultFuseBank creates a simulated fuse board with the default wiring.
func DefaultFuseBank() *SimFuseBank {
	return NewSimFuseBank(defaultBlowingPins, defaultMeasurePins)
}

func defaultFuseState() replica.Document {
	return replica.Document{
		"fuses": []any{},
		"config": map[string]any{
			"blowing": numberSlice(defaultBlowingPins),
			"measure": numberSlice(defaultMeasurePins),
		},
		"presets": map[string]any{
			"blow_one": map[string]any{"blow": []any{0.0}},
			"blow_all": map[string]any{
				"blow": []any{0.0, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0, 9.0, 10.0, 11.0},
			},
		},
	}
}

func numberSlice(pins []int) []any {
	out := make([]any, len(pins))
	for i, pin := range pins {
		out[i] = float64(pin)
	}
	return out
}

// Fuses builds the fuse-board prop on top of bank. sleep is called for the
// blow and safety delays; tests pass a no-op.
func Fuses(bank PinBank, seed int64, sleep func(time.Duration)) *Prop {
	rng := rand.New(rand.NewSource(seed))
	if sleep == nil {
		sleep = time.Sleep
	}

	callback := func(state replica.Document, backendChange bool) (replica.Document, error) {
		var config fuseConfig
		raw, _ := state["config"].(map[string]any)
		if err := replica.Document(raw).Decode(&config); err != nil {
			return nil, err
		}

		if backendChange {
			initFusePins(bank, config)
			if blow := intSlice(state["blow"]); len(blow) > 0 {
				blowFuses(bank, blow, config, rng, sleep)
			}
			delete(state, "blow")
		}

		state["fuses"] = readFuses(bank, config.Measure)
		return state, nil
	}

	return &Prop{
		Name:         "fuses",
		RunInterval:  500 * time.Millisecond,
		InitialState: defaultFuseState(),
		Callback:     callback,
	}
}

func initFusePins(bank PinBank, config fuseConfig) {
	for _, pin := range config.Blowing {
		bank.SetOutput(pin, false)
	}
	for _, pin := range config.Measure {
		bank.SetInput(pin, PullNone)
	}
}

func readFuses(bank PinBank, measure []int) []any {
	result := make([]any, 0, len(measure))
	for _, pin := range measure {
		if bank.Read(pin) {
			result = append(result, 1.0)
		} else {
			result = append(result, 0.0)
		}
	}
	return result
}

func blowFuses(bank PinBank, indexes []int, config fuseConfig, rng *rand.Rand, sleep func(time.Duration)) {
	// Hold the measurement pins low while blowing so the surge has a
	// low-impedance return path.
	for _, pin := range config.Measure {
		bank.SetOutput(pin, false)
	}
	sleep(fuseSafetyDelay)
	rng.Shuffle(len(indexes), func(i, j int) {
		indexes[i], indexes[j] = indexes[j], indexes[i]
	})
	for _, i := range indexes {
		if i < 0 || i >= len(config.Blowing) {
			slog.Warn("ignoring out-of-range fuse index", "index", i)
			continue
		}
		pin := config.Blowing[i]
		bank.SetOutput(pin, true)
		sleep(fuseBlowTime)
		bank.SetOutput(pin, false)
		sleep(fuseSafetyDelay)
	}
	initFusePins(bank, config)
}

// intSlice coerces a decoded JSON array of numbers into ints. Non-array
// and non-numeric input yields nil.
func intSlice(v any) []int {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, e := range arr {
		n, ok := e.(float64)
		if !ok {
			return nil
		}
		out = append(out, int(n))
	}
	return out
}
