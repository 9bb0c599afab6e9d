package concordance

import "math"

// Input is the (duration, event, risk) triple for one test partition.
type Input struct {
	Durations []float64
	Events    []int
	Risk      []float64
}

// Len returns the number of subjects.
func (in Input) Len() int { return len(in.Durations) }

// Pair holds raw counts for both statistics.
type Pair struct {
	Harrell       Counts
	TimeDependent Counts
}

// isCase reports whether subject i had the event by the horizon.
func (in Input) isCase(i int, horizon float64) bool {
	return in.Events[i] == 1 && in.Durations[i] <= horizon
}

// isControl reports whether subject i was known event-free at the horizon.
// A subject with an event exactly at the horizon is a case, never also a control.
func (in Input) isControl(i int, horizon float64) bool {
	return in.Durations[i] >= horizon && !in.isCase(i, horizon)
}

// finite drops subjects whose risk score is NaN or infinite.
func (in Input) finite() (Input, int) {
	dropped := 0
	for _, r := range in.Risk {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			dropped++
		}
	}
	if dropped == 0 {
		return in, 0
	}
	out := Input{
		Durations: make([]float64, 0, in.Len()-dropped),
		Events:    make([]int, 0, in.Len()-dropped),
		Risk:      make([]float64, 0, in.Len()-dropped),
	}
	for i, r := range in.Risk {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out.Durations = append(out.Durations, in.Durations[i])
		out.Events = append(out.Events, in.Events[i])
		out.Risk = append(out.Risk, r)
	}
	return out, dropped
}

// degenerate names why no concordance can be computed, or returns "".
func (in Input) degenerate() string {
	if in.Len() < 2 {
		return "fewer than 2 subjects"
	}
	events := 0
	for _, e := range in.Events {
		events += e
	}
	if events == 0 {
		return "no events"
	}
	first := in.Risk[0]
	for _, r := range in.Risk[1:] {
		if r != first {
			return ""
		}
	}
	return "constant risk score"
}

// subset copies the subjects at idx.
func (in Input) subset(idx []int) Input {
	out := Input{
		Durations: make([]float64, len(idx)),
		Events:    make([]int, len(idx)),
		Risk:      make([]float64, len(idx)),
	}
	for k, i := range idx {
		out.Durations[k] = in.Durations[i]
		out.Events[k] = in.Events[i]
		out.Risk[k] = in.Risk[i]
	}
	return out
}
