package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/services/dataset"
	"CoinSage/internal/services/registry"
	"CoinSage/pkg/cache"
)

type fakePublisher struct {
	published []models.Forecast
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, f models.Forecast) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, f)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func testPredictionConfig() PredictionConfig {
	return PredictionConfig{
		Timeframe:   domrepo.TF1h,
		Preparer:    dataset.PreparerConfig{SequenceLength: 8, MaxFeatures: 2, MinFeatures: 1},
		ForecastTTL: time.Minute,
	}
}

// trains a real model so prediction runs against a genuine artifact
func trainedSetup(t *testing.T) (*fakeStore, *registry.Registry, *models.ModelRecord) {
	t.Helper()
	store := &fakeStore{bars: map[string][]models.PriceBar{"BTC": syntheticBars("BTC", 120)}}
	reg, err := registry.New(t.TempDir(), nil)
	require.NoError(t, err)

	svc := NewTrainingService(store, reg, newFakeMetrics(), nil, testTrainingConfig(t))
	record, err := svc.TrainSymbol(context.Background(), "BTC")
	require.NoError(t, err)
	return store, reg, record
}

func TestPredictFromActiveModel(t *testing.T) {
	store, reg, record := trainedSetup(t)
	publisher := &fakePublisher{}
	metrics := newFakeMetrics()

	svc := NewPredictionService(store, reg, publisher, nil, metrics, nil, testPredictionConfig())
	forecast, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, "BTC", forecast.Symbol)
	assert.Equal(t, record.ModelID, forecast.ModelID)
	assert.Greater(t, forecast.Price, 60.0)
	assert.Less(t, forecast.Price, 140.0)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, forecast.Price, publisher.published[0].Price)
	assert.Equal(t, 1, metrics.predictions["ok"])
}

func TestPredictNoActiveModel(t *testing.T) {
	store := &fakeStore{bars: map[string][]models.PriceBar{}}
	reg, err := registry.New(t.TempDir(), nil)
	require.NoError(t, err)
	metrics := newFakeMetrics()

	svc := NewPredictionService(store, reg, nil, nil, metrics, nil, testPredictionConfig())
	_, err = svc.Predict(context.Background(), "ETH")

	var noModel *NoActiveModelError
	require.ErrorAs(t, err, &noModel)
	assert.Equal(t, "ETH", noModel.Symbol)
	assert.Equal(t, 1, metrics.predictions["error"])
}

func TestPredictUsesCache(t *testing.T) {
	store, reg, _ := trainedSetup(t)
	memCache := cache.NewMemory(time.Minute)
	defer memCache.Close()

	svc := NewPredictionService(store, reg, nil, memCache, newFakeMetrics(), nil, testPredictionConfig())
	first, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)

	// Wipe the store; a cache hit must not touch it.
	store.bars = map[string][]models.PriceBar{}
	second, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, first.ModelID, second.ModelID)
}

func TestPredictSurvivesPublishFailure(t *testing.T) {
	store, reg, _ := trainedSetup(t)
	publisher := &fakePublisher{err: assert.AnError}
	metrics := newFakeMetrics()

	svc := NewPredictionService(store, reg, publisher, nil, metrics, nil, testPredictionConfig())
	forecast, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)
	assert.NotZero(t, forecast.Price)
	assert.Equal(t, 1, metrics.errors["forecast_publish"])
}

func TestPredictMemoizesLoadedModel(t *testing.T) {
	store, reg, record := trainedSetup(t)

	svc := NewPredictionService(store, reg, nil, nil, newFakeMetrics(), nil, testPredictionConfig())
	_, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)

	// Removing the artifact does not break further predictions because the
	// predictor is already resident.
	require.NoError(t, os.Remove(record.ModelPath))
	_, err = svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)
}

func TestPredictEvictsSupersededModel(t *testing.T) {
	store, reg, record := trainedSetup(t)

	svc := NewPredictionService(store, reg, nil, nil, newFakeMetrics(), nil, testPredictionConfig())
	_, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)

	// Promote a second model backed by a copy of the first artifact.
	data, err := os.ReadFile(record.ModelPath)
	require.NoError(t, err)
	nextPath := filepath.Join(filepath.Dir(record.ModelPath), "btc_next.json")
	require.NoError(t, os.WriteFile(nextPath, data, 0o644))

	next := *record
	next.ModelID = record.ModelID + "_next"
	next.ModelPath = nextPath
	require.NoError(t, reg.Register(next))
	require.NoError(t, reg.SetActive("BTC", next.ModelID))

	forecast, err := svc.Predict(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, next.ModelID, forecast.ModelID)

	// The superseded predictor is replaced, not accumulated.
	svc.mu.Lock()
	assert.Len(t, svc.loaded, 1)
	assert.Equal(t, next.ModelID, svc.loaded["BTC"].modelID)
	svc.mu.Unlock()
}
