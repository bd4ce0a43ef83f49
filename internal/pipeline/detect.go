// Package pipeline runs one anomaly detection pass: load, score, summarize.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/loader"
	"github.com/sells-group/anomaly-cli/internal/lof"
	"github.com/sells-group/anomaly-cli/internal/model"
	"github.com/sells-group/anomaly-cli/internal/report"
)

// Stage names.
const (
	StageLoad      = "load"
	StageScore     = "score"
	StageSummarize = "summarize"
)

// Request describes one run.
type Request struct {
	Source string
	Load   loader.Options
	Params lof.Params
}

// Result is the output of a successful run.
type Result struct {
	RunID      string
	Source     string
	Params     lof.Params
	Index      lof.IndexKind // index actually used
	Series     *model.Series
	Scored     []model.ScoredObservation
	Statistics model.Statistics
	Stages     []model.StageResult
	Duration   time.Duration
}

// Document converts r to its export form.
func (r *Result) Document() report.Document {
	return report.Document{
		RunID:  r.RunID,
		Source: r.Source,
		Parameters: report.Parameters{
			NeighborhoodSize: r.Params.NeighborhoodSize,
			Contamination:    r.Params.Contamination,
			Index:            string(r.Index),
		},
		Statistics: r.Statistics,
	}
}

// SeriesLoader is the loading dependency of a Pipeline.
type SeriesLoader interface {
	Load(ctx context.Context, source string, opts loader.Options) (*model.Series, error)
}

// Pipeline wires a loader to the detector.
type Pipeline struct {
	loader SeriesLoader
}

// New creates a Pipeline. A nil loader uses loader.New(nil).
func New(l SeriesLoader) *Pipeline {
	if l == nil {
		l = loader.New(nil)
	}
	return &Pipeline{loader: l}
}

// Run loads req.Source, scores it and summarizes the result. Errors are
// returned as-is so callers can match loader and lof error types; no partial
// result is returned on failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID), zap.String("source", req.Source))
	log.Info("pipeline: starting run")

	// Reject bad parameters before touching the source.
	det, err := lof.New(req.Params)
	if err != nil {
		log.Error("pipeline: invalid parameters", zap.Error(err))
		return nil, err
	}

	start := time.Now()
	var stages []model.StageResult

	var series *model.Series
	err = track(log, &stages, StageLoad, func(st *model.StageResult) error {
		var loadErr error
		series, loadErr = p.loader.Load(ctx, req.Source, req.Load)
		if loadErr == nil {
			st.Metadata = map[string]any{"points": series.Len()}
		}
		return loadErr
	})
	if err != nil {
		return nil, err
	}

	res, err := detect(ctx, log, det, series, &stages)
	if err != nil {
		return nil, err
	}
	res.RunID = runID
	res.Duration = time.Since(start)

	log.Info("pipeline: run complete",
		zap.Int("points", res.Statistics.Count),
		zap.Int("anomalies", res.Statistics.AnomalyCount),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

// Detect scores an in-memory series, skipping the load stage.
func Detect(ctx context.Context, series *model.Series, params lof.Params) (*Result, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID))

	det, err := lof.New(params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var stages []model.StageResult
	res, err := detect(ctx, log, det, series, &stages)
	if err != nil {
		return nil, err
	}
	res.RunID = runID
	res.Duration = time.Since(start)
	return res, nil
}

func detect(ctx context.Context, log *zap.Logger, det *lof.Detector, series *model.Series, stages *[]model.StageResult) (*Result, error) {
	var (
		scored []model.ScoredObservation
		result *lof.Result
	)
	err := track(log, stages, StageScore, func(st *model.StageResult) error {
		var scoreErr error
		scored, result, scoreErr = det.ScoreSeries(ctx, series)
		if scoreErr == nil {
			st.Metadata = map[string]any{"index": string(result.Index), "flagged": result.Flagged}
		}
		return scoreErr
	})
	if err != nil {
		return nil, err
	}

	var stats model.Statistics
	_ = track(log, stages, StageSummarize, func(*model.StageResult) error {
		stats = report.Summarize(scored, result.Threshold)
		return nil
	})

	return &Result{
		Source:     series.Source,
		Params:     det.Params(),
		Index:      result.Index,
		Series:     series,
		Scored:     scored,
		Statistics: stats,
		Stages:     *stages,
	}, nil
}

// track runs fn as a named stage, logging and recording its outcome.
func track(log *zap.Logger, stages *[]model.StageResult, name string, fn func(*model.StageResult) error) error {
	st := model.StageResult{Name: name}
	start := time.Now()
	err := fn(&st)
	st.Duration = time.Since(start).Milliseconds()

	if err != nil {
		st.Status = model.StageStatusFailed
		st.Error = err.Error()
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", st.Duration),
			zap.Error(err),
		)
	} else {
		st.Status = model.StageStatusComplete
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", st.Duration),
		)
	}
	*stages = append(*stages, st)
	return err
}
