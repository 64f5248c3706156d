package props

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// Drift displays a slowly drifting value with layered noise. The displayed
// reading combines the real value (constant drift per minute), a clamped
// brownian component, a sine wave, and white noise whose magnitude decays
// over time. The backend resets rndMagnitude high whenever an operator
// takes control, which makes the reading jump around until it settles.

const driftCallsPerSecond = 10

type driftConfig struct {
	MaxRndMagnitude   float64 `json:"maxRndMagnitude"`
	RndMagnitudeDecay float64 `json:"rndMagnitudeDecay"`
	BrownNoiseSpeed   float64 `json:"brownNoiseSpeed"`
	BrownNoiseMax     float64 `json:"brownNoiseMax"`
	SineMagnitude     float64 `json:"sineMagnitude"`
	SineSpeed         float64 `json:"sineSpeed"`
	MinDriftPerMinute float64 `json:"minDriftPerMinute"`
	MaxDriftPerMinute float64 `json:"maxDriftPerMinute"`
}

type driftState struct {
	Value           float64     `json:"value"`
	RndMagnitude    float64     `json:"rndMagnitude"`
	BrownNoiseValue float64     `json:"brownNoiseValue"`
	Drift           float64     `json:"drift"`
	SinePosition    float64     `json:"sinePosition"`
	Config          driftConfig `json:"config"`
}

func defaultDriftState() driftState {
	return driftState{
		Value:        330.5,
		RndMagnitude: 30,
		Drift:        3,
		Config: driftConfig{
			MaxRndMagnitude:   30,
			RndMagnitudeDecay: 0.95,
			BrownNoiseSpeed:   0.1,
			BrownNoiseMax:     10,
			SineMagnitude:     1,
			SineSpeed:         60,
			MinDriftPerMinute: 2,
			MaxDriftPerMinute: 4,
		},
	}
}

// Drift builds the drifting-value prop. Readings go to display, one line
// per run tick: displayed value, real value, brown noise, sine, white
// noise magnitude.
func Drift(seed int64, display io.Writer) *Prop {
	rng := rand.New(rand.NewSource(seed))

	callback := func(state replica.Document, backendChange bool) (replica.Document, error) {
		if backendChange {
			fmt.Fprintln(display, "BACKEND CHANGE")
			return nil, nil
		}

		var s driftState
		if err := state.Decode(&s); err != nil {
			return nil, fmt.Errorf("decoding drift state: %w", err)
		}

		s.Value += s.Drift / driftCallsPerSecond / 60
		s.RndMagnitude *= s.Config.RndMagnitudeDecay
		bn := s.BrownNoiseValue + (rng.Float64()*2-1)*s.Config.BrownNoiseSpeed
		s.BrownNoiseValue = math.Min(s.Config.BrownNoiseMax, math.Max(-s.Config.BrownNoiseMax, bn))
		s.SinePosition += 2 * math.Pi / s.Config.SineSpeed / driftCallsPerSecond
		if s.SinePosition > 2*math.Pi {
			s.SinePosition -= 2 * math.Pi
		}

		sine := math.Sin(s.SinePosition) * s.Config.SineMagnitude
		white := rng.NormFloat64() * s.RndMagnitude
		shown := s.Value + s.BrownNoiseValue + white + sine

		fmt.Fprintf(display, "%.1f\t%.2f\t%+.2f\t%+.2f\t%.2f\n",
			shown, s.Value, s.BrownNoiseValue, sine, s.RndMagnitude)

		out, err := replica.Encode(s)
		if err != nil {
			return nil, fmt.Errorf("encoding drift state: %w", err)
		}
		return out, nil
	}

	initial, err := replica.Encode(defaultDriftState())
	if err != nil {
		panic(err) // static default state, cannot fail
	}

	return &Prop{
		Name:          "drift",
		RunInterval:   time.Second / driftCallsPerSecond,
		WriteInterval: 10 * time.Second,
		InitialState:  initial,
		Callback:      callback,
	}
}
