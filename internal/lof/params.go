// Package lof scores univariate series with the Local Outlier Factor and
// flags the most isolated fraction of points as anomalies.
package lof

import (
	"math"
	"runtime"
)

// Defaults match the neighborhood size and contamination analysts expect
// from common LOF tooling.
const (
	DefaultNeighborhoodSize = 20
	DefaultContamination    = 0.05
	MaxContamination        = 0.5
)

// IndexKind selects the neighbor search strategy. All kinds yield identical
// output; they differ only in cost.
type IndexKind string

const (
	IndexAuto   IndexKind = "auto"
	IndexBrute  IndexKind = "brute"
	IndexSorted IndexKind = "sorted"
)

// sortedIndexThreshold is the series length above which IndexAuto switches
// from the quadratic scan to the sorted index.
const sortedIndexThreshold = 2048

// Params configures a Detector.
type Params struct {
	// NeighborhoodSize is k, the number of nearest neighbors per point.
	NeighborhoodSize int `json:"neighborhood_size" yaml:"neighborhood_size"`

	// Contamination is the expected anomalous fraction, in (0, 0.5].
	Contamination float64 `json:"contamination" yaml:"contamination"`

	Index IndexKind `json:"index" yaml:"index"`

	// Workers bounds parallel neighbor search. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultParams returns Params with the standard defaults.
func DefaultParams() Params {
	return Params{
		NeighborhoodSize: DefaultNeighborhoodSize,
		Contamination:    DefaultContamination,
		Index:            IndexAuto,
	}
}

// Validate checks parameters that do not depend on the input length.
func (p Params) Validate() error {
	if p.NeighborhoodSize <= 0 {
		return &InvalidParameterError{Name: "neighborhood_size", Value: p.NeighborhoodSize, Reason: "must be a positive integer"}
	}
	if math.IsNaN(p.Contamination) || p.Contamination <= 0 || p.Contamination > MaxContamination {
		return &InvalidParameterError{Name: "contamination", Value: p.Contamination, Reason: "must be in (0, 0.5]"}
	}
	switch p.Index {
	case "", IndexAuto, IndexBrute, IndexSorted:
	default:
		return &InvalidParameterError{Name: "index", Value: p.Index, Reason: "must be auto, brute, or sorted"}
	}
	if p.Workers < 0 {
		return &InvalidParameterError{Name: "workers", Value: p.Workers, Reason: "must be >= 0"}
	}
	return nil
}

// FlagCount returns how many of n points are flagged for contamination c:
// ceil(c*n), clamped to [0, n].
func FlagCount(c float64, n int) int {
	if n <= 0 {
		return 0
	}
	// A relative tolerance of a few thousand ulps keeps products like
	// 0.1*30 = 3.0000000000000004 from rounding up without swallowing
	// genuine fractions above an integer.
	x := c * float64(n)
	m := int(math.Ceil(x - x*1e-12))
	if m < 0 {
		return 0
	}
	if m > n {
		return n
	}
	return m
}

func (p Params) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p Params) index(n int) IndexKind {
	switch p.Index {
	case IndexBrute, IndexSorted:
		return p.Index
	}
	if n > sortedIndexThreshold {
		return IndexSorted
	}
	return IndexBrute
}
