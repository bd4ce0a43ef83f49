package model

import "time"

// Statistics summarizes a scored series.
type Statistics struct {
	Count             int     `json:"count" yaml:"count"`
	AnomalyCount      int     `json:"anomaly_count" yaml:"anomaly_count"`
	AnomalyPercentage float64 `json:"anomaly_percentage" yaml:"anomaly_percentage"`
	MeanAnomalyValue  float64 `json:"mean_anomaly_value" yaml:"mean_anomaly_value"` // 0 when AnomalyCount is 0

	// ScoreThreshold is the lowest score among flagged observations.
	ScoreThreshold float64    `json:"score_threshold,omitempty" yaml:"score_threshold,omitempty"`
	FirstAnomaly   *time.Time `json:"first_anomaly,omitempty" yaml:"first_anomaly,omitempty"`
	LastAnomaly    *time.Time `json:"last_anomaly,omitempty" yaml:"last_anomaly,omitempty"`
}
