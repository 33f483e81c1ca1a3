package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/services/dataset"
	"CoinSage/internal/services/model"
	"CoinSage/internal/services/registry"
	"CoinSage/pkg/cache"
	applogger "CoinSage/pkg/logger"
)

// NoActiveModelError means the symbol has no trained model to predict with.
type NoActiveModelError struct {
	Symbol string
}

func (e *NoActiveModelError) Error() string {
	return fmt.Sprintf("no active model for symbol %q", e.Symbol)
}

type PredictionConfig struct {
	Timeframe   domrepo.Timeframe
	Preparer    dataset.PreparerConfig
	ForecastTTL time.Duration
}

// PredictionService serves forecasts from the active model per symbol.
// Loaded predictors are memoized per symbol so repeated predictions do not
// re-read artifacts; promoting a new active model replaces the symbol's
// entry, so superseded predictors do not pile up across retrains.
type PredictionService struct {
	store     domrepo.PriceStore
	registry  *registry.Registry
	publisher domrepo.ForecastPublisher
	cache     cache.Service
	metrics   domrepo.Metrics
	l         *applogger.Logger
	cfg       PredictionConfig

	mu     sync.Mutex
	loaded map[string]loadedModel
}

type loadedModel struct {
	modelID   string
	predictor *model.Predictor
}

func NewPredictionService(
	store domrepo.PriceStore,
	reg *registry.Registry,
	publisher domrepo.ForecastPublisher,
	cacheSvc cache.Service,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg PredictionConfig,
) *PredictionService {
	return &PredictionService{
		store:     store,
		registry:  reg,
		publisher: publisher,
		cache:     cacheSvc,
		metrics:   metrics,
		l:         l,
		cfg:       cfg,
		loaded:    make(map[string]loadedModel),
	}
}

// Predict produces a forecast for symbol from its active model. Results are
// cached for the configured TTL; publishing failures are logged but do not
// fail the forecast.
func (s *PredictionService) Predict(ctx context.Context, symbol string) (*models.Forecast, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}

	cacheKey := "forecast:" + symbol
	if s.cache != nil {
		var cached models.Forecast
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	forecast, err := s.predict(ctx, symbol)
	if err != nil {
		s.metrics.RecordPrediction(symbol, "error")
		s.metrics.RecordError("prediction")
		if s.l != nil {
			s.l.Error("prediction failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, err
	}

	s.metrics.RecordPrediction(symbol, "ok")
	s.metrics.RecordForecastPrice(symbol, forecast.Price)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *forecast); err != nil {
			s.metrics.RecordError("forecast_publish")
			if s.l != nil {
				s.l.Warn("forecast publish failed",
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
		}
	}
	if s.cache != nil && s.cfg.ForecastTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, forecast, s.cfg.ForecastTTL); err != nil && s.l != nil {
			s.l.Warn("forecast cache set failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
	}
	return forecast, nil
}

func (s *PredictionService) predict(ctx context.Context, symbol string) (*models.Forecast, error) {
	record := s.registry.GetActive(symbol)
	if record == nil {
		return nil, &NoActiveModelError{Symbol: symbol}
	}

	predictor, err := s.predictorFor(record)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", record.ModelID, err)
	}

	// Fetch extra bars beyond the window so fill passes have material to
	// work with. The window length comes from the artifact, not the current
	// config, so an older model keeps getting the shape it was trained on.
	prepCfg := s.cfg.Preparer
	prepCfg.SequenceLength = predictor.SequenceLength()
	lookback := prepCfg.SequenceLength * 2
	bars, err := s.store.GetLatestNBars(ctx, symbol, lookback, s.cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	preparer := dataset.NewPreparer(prepCfg)
	window, err := preparer.PrepareInference(dataset.TableFromBars(bars), predictor.FeatureColumns(), predictor.FeatureScaler())
	if err != nil {
		return nil, fmt.Errorf("prepare window: %w", err)
	}

	pred, err := predictor.Predict(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	return &models.Forecast{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		ModelID:   record.ModelID,
		Price:     pred.Price,
		Lower:     pred.Lower,
		Upper:     pred.Upper,
	}, nil
}

func (s *PredictionService) predictorFor(record *models.ModelRecord) (*model.Predictor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lm, ok := s.loaded[record.Symbol]; ok && lm.modelID == record.ModelID {
		return lm.predictor, nil
	}
	p := model.NewPredictor(model.Config{})
	if err := p.Load(record.ModelPath); err != nil {
		return nil, err
	}
	s.loaded[record.Symbol] = loadedModel{modelID: record.ModelID, predictor: p}
	if s.l != nil {
		s.l.Info("model loaded",
			applogger.String("model_id", record.ModelID),
			applogger.String("path", record.ModelPath),
		)
	}
	return p, nil
}
