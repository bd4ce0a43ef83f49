package model

import "time"

// Observation is a single (timestamp, value) point of a univariate series.
type Observation struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     float64   `json:"value" yaml:"value"`
	Row       int       `json:"row,omitempty" yaml:"row,omitempty"` // 1-based data row in the source
}

// Series is an ordered sequence of observations in read order.
type Series struct {
	Source       string        `json:"source"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Observations)
}

// Values returns the value dimension of the series as a new slice.
func (s *Series) Values() []float64 {
	if s == nil {
		return nil
	}
	values := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		values[i] = o.Value
	}
	return values
}

// ScoredObservation is an Observation extended with its outlier score and
// anomaly flag. Score is the local outlier factor: higher = more anomalous.
type ScoredObservation struct {
	Observation `yaml:",inline"`
	Score   float64 `json:"score" yaml:"score"`
	Anomaly bool    `json:"anomaly" yaml:"anomaly"`
}

// Anomalies returns only the flagged observations, preserving order.
func Anomalies(scored []ScoredObservation) []ScoredObservation {
	var out []ScoredObservation
	for _, s := range scored {
		if s.Anomaly {
			out = append(out, s)
		}
	}
	return out
}
