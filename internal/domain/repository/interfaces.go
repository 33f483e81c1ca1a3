package repository

import (
	"context"
	"time"

	"CoinSage/internal/domain/models"
)

// PriceStore provides access to OHLCV history. The forecasting core only
// reads; ingestion is the sole writer.
type PriceStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.PriceBar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.PriceBar, error)
	InsertBars(ctx context.Context, bars []models.PriceBar, tf Timeframe) error
	Health(ctx context.Context) error
	Close() error
}

// ForecastPublisher pushes completed forecasts to downstream consumers.
type ForecastPublisher interface {
	Publish(ctx context.Context, f models.Forecast) error
	Close() error
}

type Metrics interface {
	RecordTraining(symbol, result string)
	RecordTrainingDuration(symbol string, seconds float64)
	RecordPrediction(symbol, result string)
	RecordForecastPrice(symbol string, price float64)
	RecordBarsIngested(symbol string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
