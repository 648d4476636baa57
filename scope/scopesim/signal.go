package scopesim

import "math"

// A Signal gives the input voltage at time t in seconds.
type Signal func(t float64) float64

// Constant returns a signal that is always v.
func Constant(v float64) Signal {
	return func(float64) float64 { return v }
}

// Sine returns a sine wave.
func Sine(amplitude, frequency, offset float64) Signal {
	return func(t float64) float64 {
		return offset + amplitude*math.Sin(2*math.Pi*frequency*t)
	}
}

// Ramp returns a saw tooth that rises from -amplitude to amplitude once per
// period.
func Ramp(amplitude, period float64) Signal {
	return func(t float64) float64 {
		phase := math.Mod(t, period) / period
		if phase < 0 {
			phase++
		}

		return amplitude * (2*phase - 1)
	}
}
