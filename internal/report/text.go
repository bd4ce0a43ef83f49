package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/anomaly-cli/internal/model"
)

// TimeLayout is used for timestamps in text and CSV output.
const TimeLayout = "2006-01-02 15:04:05"

// TextOptions configures the human-readable report.
type TextOptions struct {
	Source    string
	MaxListed int // 0 lists every anomaly
}

// FormatText builds the human-readable report.
func FormatText(scored []model.ScoredObservation, stats model.Statistics, opts TextOptions) string {
	var b strings.Builder

	if opts.Source != "" {
		fmt.Fprintf(&b, "Anomaly report: %s\n\n", opts.Source)
	}

	fmt.Fprintf(&b, "Total data points: %d\n", stats.Count)
	fmt.Fprintf(&b, "Anomalies detected: %d\n", stats.AnomalyCount)
	fmt.Fprintf(&b, "Anomaly percentage: %.2f%%\n", stats.AnomalyPercentage)
	fmt.Fprintf(&b, "Mean anomalous value: %.2f\n", stats.MeanAnomalyValue)
	if stats.AnomalyCount > 0 {
		fmt.Fprintf(&b, "Score threshold: %.4f\n", stats.ScoreThreshold)
		if stats.FirstAnomaly != nil && stats.LastAnomaly != nil {
			fmt.Fprintf(&b, "Anomalous period: %s to %s\n",
				formatTime(*stats.FirstAnomaly), formatTime(*stats.LastAnomaly))
		}
	}

	anomalies := model.Anomalies(scored)
	if len(anomalies) == 0 {
		b.WriteString("\nNo anomalies detected.\n")
		return b.String()
	}

	listed := anomalies
	if opts.MaxListed > 0 && len(listed) > opts.MaxListed {
		listed = listed[:opts.MaxListed]
	}

	b.WriteString("\nDetected anomalies:\n")
	fmt.Fprintf(&b, "  %-20s %14s %10s\n", "TIMESTAMP", "VALUE", "SCORE")
	for _, a := range listed {
		fmt.Fprintf(&b, "  %-20s %14.2f %10.4f\n", formatTime(a.Timestamp), a.Value, a.Score)
	}
	if rest := len(anomalies) - len(listed); rest > 0 {
		fmt.Fprintf(&b, "  ... and %d more\n", rest)
	}
	return b.String()
}

// RenderText writes the human-readable report to w.
func RenderText(w io.Writer, scored []model.ScoredObservation, stats model.Statistics, opts TextOptions) error {
	if _, err := io.WriteString(w, FormatText(scored, stats, opts)); err != nil {
		return eris.Wrap(err, "report: write text")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
