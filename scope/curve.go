package scope

// Event names emitted to the EventSink.
const (
	// EventDisplayCurve carries the curve the acquisition loop wants shown:
	// the running average or the latest rolling window.
	EventDisplayCurve = "display_curve"

	// EventCurveAcquired is emitted once per completed capture.
	EventCurveAcquired = "curve_acquired"
)

// CurveKind tells how a curve was produced.
type CurveKind string

// Curve kinds.
const (
	CurveSingle   CurveKind = "single"
	CurveAveraged CurveKind = "averaged"
	CurveRolling  CurveKind = "rolling"
)

// A Curve is what consumers such as a display receive. Channels that were
// not acquired are nil.
type Curve struct {
	Kind     CurveKind    `json:"kind"`
	Times    []float64    `json:"times"`
	Ch       [2][]float64 `json:"ch"`
	Averages int          `json:"averages"`
}

// An EventSink receives curves as they become available.
type EventSink interface {
	Emit(name string, curve Curve)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(name string, curve Curve)

// Emit calls f.
func (f SinkFunc) Emit(name string, curve Curve) {
	f(name, curve)
}

type nopSink struct{}

func (nopSink) Emit(string, Curve) {}

// A Trace is one completed capture, realigned so that the samples are in
// time order.
type Trace struct {
	ID     string
	Config TriggerConfig
	Times  []float64
	Ch     [2][]float64
}

// Curve converts the trace into a single-shot curve.
func (t *Trace) Curve() Curve {
	return Curve{
		Kind:     CurveSingle,
		Times:    t.Times,
		Ch:       t.Ch,
		Averages: 1,
	}
}

// A RollingWindow is the buffer content at one poll of the free-running
// acquisition. The newest sample is at time zero. Slots that the hardware
// overwrote while they were being read hold NaN. Inactive channels are nil.
type RollingWindow struct {
	Times     []float64
	Ch        [2][]float64
	Discarded int
}

// Curve converts the window into a rolling curve.
func (w *RollingWindow) Curve() Curve {
	return Curve{
		Kind:  CurveRolling,
		Times: w.Times,
		Ch:    w.Ch,
	}
}

// RunningAverage accumulates traces of equal length. Once Max traces have
// been added, older traces decay exponentially instead of being dropped.
type RunningAverage struct {
	max   int
	n     int
	value [2][]float64
}

// NewRunningAverage creates an empty average capped at max traces. A max
// below 1 is treated as 1.
func NewRunningAverage(max int) *RunningAverage {
	a := &RunningAverage{}
	a.SetMax(max)

	return a
}

// SetMax changes the cap. The accumulated value is kept.
func (a *RunningAverage) SetMax(max int) {
	if max < 1 {
		max = 1
	}

	a.max = max
	if a.n > max {
		a.n = max
	}
}

// Max returns the cap.
func (a *RunningAverage) Max() int {
	return a.max
}

// N returns the weight of the newest trace's predecessors plus one.
func (a *RunningAverage) N() int {
	return a.n
}

// Reset forgets everything.
func (a *RunningAverage) Reset() {
	a.n = 0
	a.value = [2][]float64{}
}

// Add folds a trace into the average as avg = (avg*(n-1) + x) / n. A nil
// channel leaves that channel untouched.
func (a *RunningAverage) Add(ch [2][]float64) {
	if a.n < a.max {
		a.n++
	}

	n := float64(a.n)

	for i, x := range ch {
		if x == nil {
			continue
		}

		if len(a.value[i]) != len(x) {
			a.value[i] = make([]float64, len(x))
		}

		v := a.value[i]
		for j := range x {
			v[j] = (v[j]*(n-1) + x[j]) / n
		}
	}
}

// Value returns a copy of the current average.
func (a *RunningAverage) Value() [2][]float64 {
	var out [2][]float64

	for i, v := range a.value {
		if v != nil {
			out[i] = append([]float64(nil), v...)
		}
	}

	return out
}
