// Package report summarizes scored series and renders them as text, plots
// and machine-readable exports.
package report

import (
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/anomaly-cli/internal/model"
)

// Summarize computes statistics over a scored series. AnomalyPercentage is
// in percent (0-100). threshold is the detector's smallest flagged score;
// mean and threshold are reported as 0 when nothing is flagged.
func Summarize(scored []model.ScoredObservation, threshold float64) model.Statistics {
	stats := model.Statistics{Count: len(scored)}

	anomalies := model.Anomalies(scored)
	stats.AnomalyCount = len(anomalies)
	if stats.Count > 0 {
		stats.AnomalyPercentage = float64(stats.AnomalyCount) / float64(stats.Count) * 100
	}
	if stats.AnomalyCount == 0 {
		return stats
	}

	values := make([]float64, len(anomalies))
	first, last := anomalies[0].Timestamp, anomalies[0].Timestamp
	for i, a := range anomalies {
		values[i] = a.Value
		if a.Timestamp.Before(first) {
			first = a.Timestamp
		}
		if a.Timestamp.After(last) {
			last = a.Timestamp
		}
	}
	stats.MeanAnomalyValue = stat.Mean(values, nil)
	stats.ScoreThreshold = threshold
	stats.FirstAnomaly = &first
	stats.LastAnomaly = &last
	return stats
}
