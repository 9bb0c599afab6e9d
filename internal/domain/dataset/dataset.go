// Package dataset holds the immutable survival table evaluated by a run.
package dataset

import (
	"fmt"
	"math"
)

// Column is one named numeric covariate.
type Column struct {
	Name   string
	Values []float64
}

// Dataset is a survival table: per-row duration, event indicator and covariates.
// It is treated as read-only once a run starts; Subset returns copies.
type Dataset struct {
	Durations  []float64
	Events     []int
	Covariates []Column

	index map[string]int
}

// New builds a Dataset and checks shape: equal lengths, binary events,
// finite durations and unique covariate names.
func New(durations []float64, events []int, covariates []Column) (*Dataset, error) {
	if len(durations) != len(events) {
		return nil, fmt.Errorf("%w: %d durations vs %d events", ErrInvalidDataset, len(durations), len(events))
	}
	idx := make(map[string]int, len(covariates))
	for i, c := range covariates {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: covariate %d has no name", ErrInvalidDataset, i)
		}
		if _, dup := idx[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate covariate %q", ErrInvalidDataset, c.Name)
		}
		if len(c.Values) != len(durations) {
			return nil, fmt.Errorf("%w: covariate %q has %d values, want %d", ErrInvalidDataset, c.Name, len(c.Values), len(durations))
		}
		idx[c.Name] = i
	}
	for i, e := range events {
		if e != 0 && e != 1 {
			return nil, fmt.Errorf("%w: row %d event=%d, must be 0 or 1", ErrInvalidDataset, i, e)
		}
		if math.IsNaN(durations[i]) || math.IsInf(durations[i], 0) {
			return nil, fmt.Errorf("%w: row %d has non-finite duration", ErrInvalidDataset, i)
		}
	}
	return &Dataset{Durations: durations, Events: events, Covariates: covariates, index: idx}, nil
}

// Validate enforces the run invariant: every duration is strictly positive.
func (d *Dataset) Validate() error {
	for i, t := range d.Durations {
		if !(t > 0) {
			return fmt.Errorf("%w: row %d duration=%v, must be > 0", ErrInvalidDataset, i, t)
		}
	}
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Durations) }

// EventCount returns the number of rows with an observed event.
func (d *Dataset) EventCount() int {
	n := 0
	for _, e := range d.Events {
		n += e
	}
	return n
}

// EventRate returns events / rows, or NaN for an empty table.
func (d *Dataset) EventRate() float64 {
	if d.Len() == 0 {
		return math.NaN()
	}
	return float64(d.EventCount()) / float64(d.Len())
}

// Names returns covariate names in column order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Covariates))
	for i, c := range d.Covariates {
		out[i] = c.Name
	}
	return out
}

// Column returns the named covariate.
func (d *Dataset) Column(name string) (Column, error) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return d.Covariates[i], nil
}

// Strata returns the binary stratification labels for the named column.
// The status column name (or an empty name) selects the event indicator.
func (d *Dataset) Strata(name, statusCol string) ([]int, error) {
	if name == "" || name == statusCol {
		return d.Events, nil
	}
	c, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(c.Values))
	for i, v := range c.Values {
		switch v {
		case 0:
			out[i] = 0
		case 1:
			out[i] = 1
		default:
			return nil, fmt.Errorf("%w: stratification column %q row %d = %v, must be 0 or 1", ErrInvalidDataset, name, i, v)
		}
	}
	return out, nil
}

// Subset copies the rows at indices, in that order.
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{
		Durations:  make([]float64, len(indices)),
		Events:     make([]int, len(indices)),
		Covariates: make([]Column, len(d.Covariates)),
		index:      d.index,
	}
	for k, i := range indices {
		out.Durations[k] = d.Durations[i]
		out.Events[k] = d.Events[i]
	}
	for j, c := range d.Covariates {
		vals := make([]float64, len(indices))
		for k, i := range indices {
			vals[k] = c.Values[i]
		}
		out.Covariates[j] = Column{Name: c.Name, Values: vals}
	}
	return out
}
