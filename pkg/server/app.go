package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/handler"
	"CoinSage/internal/usecase"
	"CoinSage/pkg/cache"
	pkgch "CoinSage/pkg/clickhouse"
	"CoinSage/pkg/config"
	xhttp "CoinSage/pkg/http"
	pkgkafka "CoinSage/pkg/kafka"
	applogger "CoinSage/pkg/logger"
	pkgqueue "CoinSage/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	chClient   *pkgch.Client
	queue      *pkgqueue.RedisQueue
	consumer   *pkgkafka.Consumer
	barHandler *usecase.BarIngestHandler
	trainJob   *usecase.TrainJob
	predictor  *usecase.PredictionService
	publisher  domrepo.ForecastPublisher
	cacheSvc   cache.Service
	ops        *handler.OpsHandler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	chClient *pkgch.Client,
	queue *pkgqueue.RedisQueue,
	consumer *pkgkafka.Consumer,
	barHandler *usecase.BarIngestHandler,
	trainJob *usecase.TrainJob,
	predictor *usecase.PredictionService,
	publisher domrepo.ForecastPublisher,
	cacheSvc cache.Service,
	ops *handler.OpsHandler,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		chClient:   chClient,
		queue:      queue,
		consumer:   consumer,
		barHandler: barHandler,
		trainJob:   trainJob,
		predictor:  predictor,
		publisher:  publisher,
		cacheSvc:   cacheSvc,
		ops:        ops,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.ops,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
		xhttp.WithLogger(a.l),
	)

	if a.queue != nil {
		a.queue.RegisterJob(a.trainJob)
		if err := a.queue.Start(); err != nil {
			a.l.Error("queue start error", applogger.Error(err))
			return err
		}
		a.l.Info("training queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.consumer != nil && a.barHandler != nil {
		a.consumer.RegisterHandler(a.barHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.barHandler.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	if a.cfg.Training.TrainOnStart {
		a.enqueueTraining(ctx)
	}
	go a.retrainLoop(ctx)
	go a.forecastLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// enqueueTraining pushes one training job per configured symbol.
func (a *App) enqueueTraining(ctx context.Context) {
	if a.queue == nil {
		return
	}
	for _, symbol := range a.cfg.Training.Symbols {
		if err := a.queue.Enqueue(ctx, usecase.TrainJobType, map[string]string{"symbol": symbol}); err != nil {
			a.l.Error("enqueue training failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			continue
		}
		a.l.Info("training enqueued", applogger.String("symbol", symbol))
	}
}

// retrainLoop re-enqueues training for all symbols on the configured cadence.
func (a *App) retrainLoop(ctx context.Context) {
	if a.queue == nil || a.cfg.Training.RetrainInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.Training.RetrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.enqueueTraining(ctx)
		}
	}
}

// forecastLoop periodically produces and publishes forecasts for all symbols.
// Symbols without a trained model yet are skipped quietly.
func (a *App) forecastLoop(ctx context.Context) {
	if a.predictor == nil || a.cfg.Training.ForecastInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.Training.ForecastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range a.cfg.Training.Symbols {
				forecast, err := a.predictor.Predict(ctx, symbol)
				if err != nil {
					var noModel *usecase.NoActiveModelError
					if errors.As(err, &noModel) {
						continue
					}
					a.l.Warn("forecast failed",
						applogger.String("symbol", symbol),
						applogger.Error(err),
					)
					continue
				}
				a.l.Info("forecast produced",
					applogger.String("symbol", symbol),
					applogger.String("model_id", forecast.ModelID),
					applogger.Float64("price", forecast.Price),
				)
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.l.Warn("queue stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
	return nil
}
