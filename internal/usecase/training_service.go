package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/services/dataset"
	"CoinSage/internal/services/model"
	"CoinSage/internal/services/registry"
	applogger "CoinSage/pkg/logger"
)

const targetColumn = "close"

type TrainingConfig struct {
	Timeframe    domrepo.Timeframe
	LookbackBars int
	ModelDir     string
	Preparer     dataset.PreparerConfig
	Model        model.Config
}

// TrainingService runs the full per-symbol training pipeline: fetch bars,
// prepare windows, fit a fresh predictor, persist the artifact, register it,
// and promote it to active.
type TrainingService struct {
	store    domrepo.PriceStore
	registry *registry.Registry
	metrics  domrepo.Metrics
	l        *applogger.Logger
	cfg      TrainingConfig
}

func NewTrainingService(
	store domrepo.PriceStore,
	reg *registry.Registry,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg TrainingConfig,
) *TrainingService {
	if cfg.LookbackBars <= 0 {
		cfg.LookbackBars = 1000
	}
	return &TrainingService{store: store, registry: reg, metrics: metrics, l: l, cfg: cfg}
}

// TrainSymbol trains and activates a new model for one symbol. Each run gets
// a fresh predictor and freshly fitted scalers; nothing carries over from the
// previous model.
func (s *TrainingService) TrainSymbol(ctx context.Context, symbol string) (*models.ModelRecord, error) {
	start := time.Now()
	record, err := s.trainSymbol(ctx, symbol)
	if err != nil {
		s.metrics.RecordTraining(symbol, "error")
		s.metrics.RecordError("training")
		if s.l != nil {
			s.l.Error("training failed",
				applogger.String("symbol", symbol),
				applogger.Duration("duration_ms", time.Since(start)),
				applogger.Error(err),
			)
		}
		return nil, err
	}
	s.metrics.RecordTraining(symbol, "ok")
	s.metrics.RecordTrainingDuration(symbol, time.Since(start).Seconds())
	if s.l != nil {
		s.l.Info("training complete",
			applogger.String("symbol", symbol),
			applogger.String("model_id", record.ModelID),
			applogger.Float64("final_loss", record.Metrics["final_loss"]),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return record, nil
}

func (s *TrainingService) trainSymbol(ctx context.Context, symbol string) (*models.ModelRecord, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}

	bars, err := s.store.GetLatestNBars(ctx, symbol, s.cfg.LookbackBars, s.cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	preparer := dataset.NewPreparer(s.cfg.Preparer)
	prepared, err := preparer.Prepare(dataset.TableFromBars(bars), targetColumn, nil)
	if err != nil {
		return nil, fmt.Errorf("prepare dataset: %w", err)
	}

	predictor := model.NewPredictor(s.cfg.Model)
	if err := predictor.Build(len(prepared.FeatureColumns)); err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	trainMetrics, err := predictor.Train(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", symbol, err)
	}

	modelID := newModelID(symbol)
	artifactPath := filepath.Join(s.cfg.ModelDir, modelID+".json")
	if err := predictor.Save(artifactPath); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	trainMetrics.ModelPath = artifactPath

	record := models.ModelRecord{
		ModelID:   modelID,
		Symbol:    symbol,
		ModelType: model.ModelType,
		ModelPath: artifactPath,
		Metrics:   trainMetrics.Map(),
		Metadata: map[string]string{
			"timeframe":       string(s.cfg.Timeframe),
			"feature_columns": strings.Join(prepared.FeatureColumns, ","),
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.registry.Register(record); err != nil {
		return nil, fmt.Errorf("register model: %w", err)
	}
	if err := s.registry.SetActive(symbol, modelID); err != nil {
		return nil, fmt.Errorf("activate model: %w", err)
	}
	return &record, nil
}

func newModelID(symbol string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(symbol), time.Now().UTC().Format("20060102T150405Z"))
}
