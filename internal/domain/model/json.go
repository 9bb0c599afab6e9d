package model

import (
	"encoding/json"
	"math"
	"time"
)

// resultJSON mirrors Result with nullable concordance fields, since JSON has no NaN.
type resultJSON struct {
	Unit            Unit               `json:"unit"`
	TimeDependent   *float64           `json:"cindex_time_dependent"`
	TimeIndependent *float64           `json:"cindex_time_independent"`
	ElapsedNS       int64              `json:"elapsed_ns"`
	Importance      map[string]float64 `json:"importance,omitempty"`
	FailureKind     FailureKind        `json:"failure_kind,omitempty"`
	Err             string             `json:"error,omitempty"`
	NTrain          int                `json:"n_train"`
	NTest           int                `json:"n_test"`
}

// NullableFloat returns nil for NaN or infinite values.
func NullableFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FromNullable is the inverse of NullableFloat.
func FromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes NaN concordance as null.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Unit:            r.Unit,
		TimeDependent:   NullableFloat(r.TimeDependent),
		TimeIndependent: NullableFloat(r.TimeIndependent),
		ElapsedNS:       int64(r.Elapsed),
		Importance:      r.Importance,
		FailureKind:     r.FailureKind,
		Err:             r.Err,
		NTrain:          r.NTrain,
		NTest:           r.NTest,
	})
}

// UnmarshalJSON decodes null concordance back to NaN.
func (r *Result) UnmarshalJSON(b []byte) error {
	var aux resultJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Result{
		Unit:            aux.Unit,
		TimeDependent:   FromNullable(aux.TimeDependent),
		TimeIndependent: FromNullable(aux.TimeIndependent),
		Elapsed:         time.Duration(aux.ElapsedNS),
		Importance:      aux.Importance,
		FailureKind:     aux.FailureKind,
		Err:             aux.Err,
		NTrain:          aux.NTrain,
		NTest:           aux.NTest,
	}
	return nil
}
