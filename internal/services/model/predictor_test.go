package model

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSage/internal/services/dataset"
)

func testConfig() Config {
	return Config{
		SequenceLength: 8,
		HiddenSizes:    []int{8},
		Epochs:         15,
		BatchSize:      8,
		LearningRate:   0.01,
		Patience:       5,
		ClipNorm:       5,
		Seed:           42,
	}
}

func syntheticPrepared(t *testing.T, n int) *dataset.Prepared {
	t.Helper()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	timestamps := make([]time.Time, n)
	closeCol := make([]float64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = base.Add(time.Duration(i) * time.Hour)
		closeCol[i] = 100 + 10*math.Sin(float64(i)/6)
	}
	table := dataset.NewTable(timestamps)
	table.AddColumn("close", closeCol)

	p := dataset.NewPreparer(dataset.PreparerConfig{SequenceLength: 8, MaxFeatures: 1, MinFeatures: 1})
	prepared, err := p.Prepare(table, "close", []string{"close"})
	require.NoError(t, err)
	return prepared
}

func TestTrainAndPredict(t *testing.T) {
	prepared := syntheticPrepared(t, 80)
	p := NewPredictor(testConfig())
	require.NoError(t, p.Build(len(prepared.FeatureColumns)))
	assert.Equal(t, StateBuilt, p.State())

	metrics, err := p.Train(context.Background(), prepared)
	require.NoError(t, err)
	assert.Equal(t, StateTrained, p.State())
	assert.Greater(t, metrics.EpochsTrained, 0)
	assert.GreaterOrEqual(t, metrics.EpochsTrained, metrics.BestEpoch)
	assert.False(t, math.IsNaN(metrics.FinalLoss))

	pred, err := p.Predict(context.Background(), prepared.X[len(prepared.X)-1])
	require.NoError(t, err)
	// Series lives in [90, 110]; the forecast must land in its neighborhood.
	assert.Greater(t, pred.Price, 60.0)
	assert.Less(t, pred.Price, 140.0)
}

func TestPredictBeforeTrainingFails(t *testing.T) {
	p := NewPredictor(testConfig())

	_, err := p.Predict(context.Background(), make([][]float64, 8))
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, ErrCodeNotTrained, predErr.Code)

	require.NoError(t, p.Build(1))
	_, err = p.Predict(context.Background(), make([][]float64, 8))
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, ErrCodeNotTrained, predErr.Code)
}

func TestTrainBuildsImplicitly(t *testing.T) {
	prepared := syntheticPrepared(t, 80)
	p := NewPredictor(testConfig())
	require.Equal(t, StateUninitialized, p.State())

	metrics, err := p.Train(context.Background(), prepared)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	assert.Equal(t, StateTrained, p.State())
}

func TestTrainWithoutValidationSplit(t *testing.T) {
	// 12 rows with sequence length 8 leave 4 windows, too few for a
	// validation fifth.
	prepared := syntheticPrepared(t, 12)
	require.Less(t, len(prepared.X), 5)

	p := NewPredictor(testConfig())
	metrics, err := p.Train(context.Background(), prepared)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	assert.Nil(t, metrics.FinalValLoss)
	assert.NotContains(t, metrics.Map(), "final_val_loss")
	assert.False(t, math.IsNaN(metrics.FinalLoss))
	assert.Zero(t, metrics.ResidualStd)
	assert.Equal(t, StateTrained, p.State())

	pred, err := p.Predict(context.Background(), prepared.X[0])
	require.NoError(t, err)
	assert.Nil(t, pred.Lower)
	assert.Nil(t, pred.Upper)
}

func TestPredictRejectsWrongWindowShape(t *testing.T) {
	prepared := syntheticPrepared(t, 80)
	p := NewPredictor(testConfig())
	require.NoError(t, p.Build(len(prepared.FeatureColumns)))
	_, err := p.Train(context.Background(), prepared)
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), prepared.X[0][:4])
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, ErrCodeBadShape, predErr.Code)
}

func TestDivergenceReportsPartialMetrics(t *testing.T) {
	prepared := syntheticPrepared(t, 80)
	cfg := testConfig()
	cfg.LearningRate = 1e9
	cfg.ClipNorm = 0
	p := NewPredictor(cfg)
	require.NoError(t, p.Build(len(prepared.FeatureColumns)))

	_, err := p.Train(context.Background(), prepared)
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.Equal(t, ErrCodeDiverged, trainErr.Code)
	require.NotNil(t, trainErr.Metrics)
	assert.Greater(t, trainErr.Metrics.EpochsTrained, 0)
	assert.NotEqual(t, StateTrained, p.State())
}

func TestTrainHonorsContextCancel(t *testing.T) {
	prepared := syntheticPrepared(t, 80)
	p := NewPredictor(testConfig())
	require.NoError(t, p.Build(len(prepared.FeatureColumns)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Train(ctx, prepared)
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.Equal(t, ErrCodeInterrupted, trainErr.Code)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	prepared := syntheticPrepared(t, 80)
	p := NewPredictor(testConfig())
	require.NoError(t, p.Build(len(prepared.FeatureColumns)))
	_, err := p.Train(context.Background(), prepared)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, p.Save(path))

	loaded := NewPredictor(Config{})
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, StateLoaded, loaded.State())
	assert.Equal(t, p.FeatureColumns(), loaded.FeatureColumns())
	assert.Equal(t, p.ResidualStd(), loaded.ResidualStd())

	window := prepared.X[len(prepared.X)-1]
	want, err := p.Predict(context.Background(), window)
	require.NoError(t, err)
	got, err := loaded.Predict(context.Background(), window)
	require.NoError(t, err)
	assert.InDelta(t, want.Price, got.Price, 1e-9)
}

func TestSaveBeforeTrainingFails(t *testing.T) {
	p := NewPredictor(testConfig())
	require.NoError(t, p.Build(2))

	err := p.Save(filepath.Join(t.TempDir(), "model.json"))
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.Equal(t, ErrCodeNotTrained, trainErr.Code)
}

func TestLoadRejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	p := NewPredictor(Config{})
	err := p.Load(path)
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, ErrCodeArtifact, predErr.Code)
	assert.Equal(t, StateUninitialized, p.State())
}

func TestConfidenceBandsPresentWithValidation(t *testing.T) {
	prepared := syntheticPrepared(t, 120)
	p := NewPredictor(testConfig())
	require.NoError(t, p.Build(len(prepared.FeatureColumns)))
	metrics, err := p.Train(context.Background(), prepared)
	require.NoError(t, err)
	require.Greater(t, metrics.ResidualStd, 0.0)

	pred, err := p.Predict(context.Background(), prepared.X[0])
	require.NoError(t, err)
	require.NotNil(t, pred.Lower)
	require.NotNil(t, pred.Upper)
	assert.Less(t, *pred.Lower, pred.Price)
	assert.Greater(t, *pred.Upper, pred.Price)
}
