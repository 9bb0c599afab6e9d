package dataset

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Policy decides what happens to rows whose duration is not strictly positive.
type Policy string

// Supported policies.
const (
	// PolicyDrop discards the rows.
	PolicyDrop Policy = "drop"
	// PolicyEpsilon replaces the duration with machine epsilon.
	PolicyEpsilon Policy = "epsilon"
	// PolicyCensoredMedian replaces a censored row's duration with the median
	// positive duration of the other censored rows.
	PolicyCensoredMedian Policy = "censored_median"
)

// PrepareReport counts what PrepareDurations changed.
type PrepareReport struct {
	Dropped  int
	Replaced int
}

// PrepareDurations applies policy to rows with duration <= 0 and returns a new
// Dataset that satisfies Validate. Event rows with a non-positive duration are
// always dropped: an event at time zero carries no ordering information.
func PrepareDurations(d *Dataset, policy Policy) (*Dataset, PrepareReport, error) {
	var rep PrepareReport

	fill := math.NaN()
	switch policy {
	case PolicyDrop:
	case PolicyEpsilon:
		fill = math.Nextafter(1, 2) - 1 // float64 machine epsilon
	case PolicyCensoredMedian:
		var positive []float64
		for i, t := range d.Durations {
			if d.Events[i] == 0 && t > 0 {
				positive = append(positive, t)
			}
		}
		if len(positive) == 0 {
			return nil, rep, fmt.Errorf("%w: censored_median needs at least one censored row with positive duration", ErrInvalidDataset)
		}
		m, err := stats.Median(positive)
		if err != nil {
			return nil, rep, fmt.Errorf("%w: censored median: %v", ErrInvalidDataset, err)
		}
		fill = m
	default:
		return nil, rep, fmt.Errorf("%w: unknown duration policy %q", ErrInvalidDataset, policy)
	}

	keep := make([]int, 0, d.Len())
	var replace []int
	for i, t := range d.Durations {
		switch {
		case t > 0:
			keep = append(keep, i)
		case d.Events[i] == 1 || policy == PolicyDrop:
			rep.Dropped++
		default:
			keep = append(keep, i)
			replace = append(replace, len(keep)-1)
		}
	}

	out := d.Subset(keep)
	for _, k := range replace {
		out.Durations[k] = fill
	}
	rep.Replaced = len(replace)
	return out, rep, nil
}
