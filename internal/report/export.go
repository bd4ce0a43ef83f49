package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/anomaly-cli/internal/model"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Parameters records the detector settings of a run.
type Parameters struct {
	NeighborhoodSize int     `json:"neighborhood_size" yaml:"neighborhood_size"`
	Contamination    float64 `json:"contamination" yaml:"contamination"`
	Index            string  `json:"index,omitempty" yaml:"index,omitempty"`
}

// Document is the machine-readable form of one run.
type Document struct {
	RunID        string                    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Source       string                    `json:"source,omitempty" yaml:"source,omitempty"`
	Parameters   Parameters                `json:"parameters" yaml:"parameters"`
	Statistics   model.Statistics          `json:"statistics" yaml:"statistics"`
	Observations []model.ScoredObservation `json:"observations,omitempty" yaml:"observations,omitempty"`
	Anomalies    []model.ScoredObservation `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

var csvHeader = []string{"timestamp", "value", "score", "anomaly"}

// Export writes doc to w. JSON carries every observation, YAML only the
// anomalies, CSV one row per observation.
func Export(w io.Writer, format string, doc Document, scored []model.ScoredObservation) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		doc.Observations = scored
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "report: encode json")
		}
		return nil
	case FormatYAML, "yml":
		doc.Anomalies = model.Anomalies(scored)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "report: flush yaml")
		}
		return nil
	case FormatCSV:
		return writeCSV(w, scored)
	default:
		return eris.Errorf("report: unsupported export format %q (use json, csv or yaml)", format)
	}
}

// ExportFile writes an export to path. An empty format is taken from the
// file extension.
func ExportFile(path, format string, doc Document, scored []model.ScoredObservation) error {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create export file")
	}
	if err := Export(f, format, doc, scored); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "report: close export file")
	}
	return nil
}

func writeCSV(w io.Writer, scored []model.ScoredObservation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, s := range scored {
		row := []string{
			formatTime(s.Timestamp),
			strconv.FormatFloat(s.Value, 'f', -1, 64),
			strconv.FormatFloat(s.Score, 'f', 6, 64),
			strconv.FormatBool(s.Anomaly),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "report: flush csv")
	}
	return nil
}
