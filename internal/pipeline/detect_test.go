package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/loader"
	"github.com/sells-group/anomaly-cli/internal/lof"
	"github.com/sells-group/anomaly-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context, source string, opts loader.Options) (*model.Series, error) {
	args := m.Called(ctx, source, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Series), args.Error(1)
}

func spikeSeries() *model.Series {
	t0 := time.Date(2015, 9, 17, 16, 0, 0, 0, time.UTC)
	values := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 50}
	s := &model.Series{Source: "spike.csv"}
	for i, v := range values {
		s.Observations = append(s.Observations, model.Observation{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Value:     v,
			Row:       i + 1,
		})
	}
	return s
}

func spikeParams() lof.Params {
	return lof.Params{NeighborhoodSize: 3, Contamination: 0.1}
}

func TestRun(t *testing.T) {
	ml := &mockLoader{}
	opts := loader.Options{ValueField: "value"}
	ml.On("Load", mock.Anything, "spike.csv", opts).Return(spikeSeries(), nil)

	res, err := New(ml).Run(context.Background(), Request{Source: "spike.csv", Load: opts, Params: spikeParams()})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "spike.csv", res.Source)
	require.Len(t, res.Scored, 10)
	assert.Equal(t, 1, res.Statistics.AnomalyCount)
	assert.Equal(t, 50.0, res.Statistics.MeanAnomalyValue)
	assert.True(t, res.Scored[9].Anomaly)
	assert.Equal(t, lof.IndexBrute, res.Index)

	require.Len(t, res.Stages, 3)
	assert.Equal(t, StageLoad, res.Stages[0].Name)
	assert.Equal(t, StageScore, res.Stages[1].Name)
	assert.Equal(t, StageSummarize, res.Stages[2].Name)
	for _, st := range res.Stages {
		assert.Equal(t, model.StageStatusComplete, st.Status)
	}
	assert.Equal(t, 10, res.Stages[0].Metadata["points"])
	ml.AssertExpectations(t)
}

func TestRun_UniqueRunIDs(t *testing.T) {
	ml := &mockLoader{}
	ml.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(spikeSeries(), nil)
	p := New(ml)

	a, err := p.Run(context.Background(), Request{Source: "spike.csv", Params: spikeParams()})
	require.NoError(t, err)
	b, err := p.Run(context.Background(), Request{Source: "spike.csv", Params: spikeParams()})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Scored, b.Scored)
}

func TestRun_LoadErrorPassesThrough(t *testing.T) {
	ml := &mockLoader{}
	notFound := &loader.SourceNotFoundError{Source: "missing.csv"}
	ml.On("Load", mock.Anything, "missing.csv", mock.Anything).Return(nil, notFound)

	res, err := New(ml).Run(context.Background(), Request{Source: "missing.csv", Params: spikeParams()})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, loader.ErrSourceNotFound))
}

func TestRun_InvalidParamsSkipLoad(t *testing.T) {
	ml := &mockLoader{}

	_, err := New(ml).Run(context.Background(), Request{Source: "spike.csv", Params: lof.Params{NeighborhoodSize: 0, Contamination: 0.1}})
	assert.True(t, errors.Is(err, lof.ErrInvalidParameter))
	ml.AssertNotCalled(t, "Load", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_InsufficientData(t *testing.T) {
	ml := &mockLoader{}
	ml.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(spikeSeries(), nil)

	res, err := New(ml).Run(context.Background(), Request{Source: "spike.csv", Params: lof.Params{NeighborhoodSize: 20, Contamination: 0.05}})
	assert.Nil(t, res)
	var ide *lof.InsufficientDataError
	require.True(t, errors.As(err, &ide))
}

func TestRun_FromCSV(t *testing.T) {
	p := filepath.Join(t.TempDir(), "spike.csv")
	content := "timestamp,value\n"
	for i, v := range []string{"1", "1", "1", "1", "1", "1", "1", "1", "1", "50"} {
		content += time.Date(2015, 9, 17, 16, i, 0, 0, time.UTC).Format("2006-01-02 15:04:05") + "," + v + "\n"
	}
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	res, err := New(nil).Run(context.Background(), Request{Source: p, Params: spikeParams()})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Statistics.Count)
	assert.Equal(t, 1, res.Statistics.AnomalyCount)
	assert.Equal(t, 50.0, model.Anomalies(res.Scored)[0].Value)
}

func TestDetect(t *testing.T) {
	res, err := Detect(context.Background(), spikeSeries(), spikeParams())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Stages, 2)
	assert.Equal(t, 1, res.Statistics.AnomalyCount)
	assert.Equal(t, res.Scored[9].Score, res.Statistics.ScoreThreshold)

	doc := res.Document()
	assert.Equal(t, res.RunID, doc.RunID)
	assert.Equal(t, 3, doc.Parameters.NeighborhoodSize)
	assert.Equal(t, "brute", doc.Parameters.Index)
}
