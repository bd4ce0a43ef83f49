package lof

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/model"
)

// densityEpsilon keeps the local reachability density finite when every
// neighbor coincides with the point (mean reachability distance of zero).
const densityEpsilon = 1e-10

// Result holds per-point outputs, aligned with the input order.
type Result struct {
	// Scores are local outlier factors. ~1 means the point is as dense as
	// its neighbors; larger values mean more isolated.
	Scores    []float64
	Anomalies []bool

	// Flagged is ceil(contamination * N).
	Flagged int

	// Threshold is the smallest flagged score.
	Threshold float64

	Index    IndexKind
	Duration time.Duration
}

// Detector scores series with fixed parameters. It holds no state between
// calls and is safe for concurrent use.
type Detector struct {
	params Params
}

// New validates params and returns a Detector.
func New(params Params) (*Detector, error) {
	if params.Index == "" {
		params.Index = IndexAuto
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: params}, nil
}

// Params returns the detector's parameters.
func (d *Detector) Params() Params {
	return d.params
}

// Score computes the outlier factor of every value and flags the top
// ceil(contamination*N). values is not modified.
func (d *Detector) Score(ctx context.Context, values []float64) (*Result, error) {
	start := time.Now()
	n, k := len(values), d.params.NeighborhoodSize

	if n <= k {
		return nil, &InsufficientDataError{Points: n, NeighborhoodSize: k}
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &InvalidParameterError{Name: fmt.Sprintf("values[%d]", i), Value: v, Reason: "must be finite"}
		}
	}

	kind := d.params.index(n)
	nb, err := findNeighbors(ctx, values, k, kind, d.params.workers())
	if err != nil {
		return nil, err
	}

	lrd := reachabilityDensities(nb, n)
	scores := outlierFactors(nb, lrd, n)
	anomalies, threshold, flagged := flagTop(scores, d.params.Contamination)

	res := &Result{
		Scores:    scores,
		Anomalies: anomalies,
		Flagged:   flagged,
		Threshold: threshold,
		Index:     kind,
		Duration:  time.Since(start),
	}

	zap.L().Debug("lof: scored series",
		zap.Int("points", n),
		zap.Int("neighborhood_size", k),
		zap.Float64("contamination", d.params.Contamination),
		zap.String("index", string(kind)),
		zap.Int("flagged", flagged),
		zap.Float64("threshold", threshold),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ScoreSeries scores a series and returns its observations extended with
// score and flag. The series itself is left untouched.
func (d *Detector) ScoreSeries(ctx context.Context, s *model.Series) ([]model.ScoredObservation, *Result, error) {
	res, err := d.Score(ctx, s.Values())
	if err != nil {
		return nil, nil, err
	}
	scored := make([]model.ScoredObservation, len(s.Observations))
	for i, o := range s.Observations {
		scored[i] = model.ScoredObservation{
			Observation: o,
			Score:       res.Scores[i],
			Anomaly:     res.Anomalies[i],
		}
	}
	return scored, res, nil
}

// reachabilityDensities returns lrd(p) = 1 / (mean reach(p, o) + eps) where
// reach(p, o) = max(k-distance(o), d(p, o)).
func reachabilityDensities(nb *neighborhoods, n int) []float64 {
	lrd := make([]float64, n)
	for i := range n {
		idx, dist := nb.of(i)
		var sum float64
		for j, o := range idx {
			sum += math.Max(nb.kdist[o], dist[j])
		}
		lrd[i] = 1 / (sum/float64(nb.k) + densityEpsilon)
	}
	return lrd
}

// outlierFactors returns lof(p) = mean(lrd(o) for o in N(p)) / lrd(p).
func outlierFactors(nb *neighborhoods, lrd []float64, n int) []float64 {
	scores := make([]float64, n)
	for i := range n {
		idx, _ := nb.of(i)
		var sum float64
		for _, o := range idx {
			sum += lrd[o]
		}
		scores[i] = sum / float64(nb.k) / lrd[i]
	}
	return scores
}

// flagTop marks the ceil(c*N) highest scores. Equal scores rank later input
// positions first, so at a tied cutoff the earliest observations remain
// unflagged.
func flagTop(scores []float64, c float64) ([]bool, float64, int) {
	n := len(scores)
	m := FlagCount(c, n)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if r := cmp.Compare(scores[b], scores[a]); r != 0 {
			return r
		}
		return cmp.Compare(b, a)
	})

	anomalies := make([]bool, n)
	for _, i := range order[:m] {
		anomalies[i] = true
	}
	var threshold float64
	if m > 0 {
		threshold = scores[order[m-1]]
	}
	return anomalies, threshold, m
}
