package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/handler"
	internalrepo "CoinSage/internal/repository"
	"CoinSage/internal/services/dataset"
	"CoinSage/internal/services/model"
	"CoinSage/internal/services/registry"
	"CoinSage/internal/usecase"
	"CoinSage/pkg/cache"
	pkgch "CoinSage/pkg/clickhouse"
	"CoinSage/pkg/config"
	pkgkafka "CoinSage/pkg/kafka"
	applogger "CoinSage/pkg/logger"
	"CoinSage/pkg/metrics"
	pkgqueue "CoinSage/pkg/queue"
	"CoinSage/pkg/server"
)

// ProvideLogger creates the application logger. Production gets JSON output,
// everything else a console writer.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the bar
// tables exist.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const barTable = " (ts DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, volume Nullable(Float64), market_cap Nullable(Float64)) ENGINE=ReplacingMergeTree ORDER BY (symbol, ts)"
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
		"CREATE TABLE IF NOT EXISTS " + cfg.ClickHouse.Database + ".price_bars_1m" + barTable,
		"CREATE TABLE IF NOT EXISTS " + cfg.ClickHouse.Database + ".price_bars_1h" + barTable,
		"CREATE TABLE IF NOT EXISTS " + cfg.ClickHouse.Database + ".price_bars_1d" + barTable,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisClient creates the shared Redis connection.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the forecast cache on the configured backend.
func ProvideCache(cfg *config.Config, client *redis.Client) cache.Service {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedis(client, "coinsage:cache")
	}
	return cache.NewMemory(time.Minute)
}

// ProvideQueue creates the Redis-backed training job queue.
func ProvideQueue(l *applogger.Logger, cfg *config.Config, client *redis.Client) *pkgqueue.RedisQueue {
	return pkgqueue.NewRedisQueue(l, &pkgqueue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		KeyPrefix:  cfg.Queue.KeyPrefix,
	}, client)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvidePriceStore creates the ClickHouse bar store.
func ProvidePriceStore(chClient *pkgch.Client, l *applogger.Logger) domrepo.PriceStore {
	store := internalrepo.NewCHPriceStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideRegistry opens the durable model registry.
func ProvideRegistry(cfg *config.Config, l *applogger.Logger) (*registry.Registry, error) {
	return registry.New(cfg.Registry.Dir, l)
}

// ProvideForecastPublisher wraps the Kafka producer, or nil when Kafka is off.
func ProvideForecastPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ForecastPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.ForecastsTopic)
}

func preparerConfig(cfg *config.Config) dataset.PreparerConfig {
	return dataset.PreparerConfig{
		SequenceLength: cfg.Model.SequenceLength,
		MaxFeatures:    cfg.Model.MaxFeatures,
		MinFeatures:    cfg.Model.MinFeatures,
		ScalerKind:     dataset.ScalerKind(cfg.Model.ScalerKind),
	}
}

// ProvideTrainingService creates the training pipeline.
func ProvideTrainingService(
	store domrepo.PriceStore,
	reg *registry.Registry,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.TrainingService {
	return usecase.NewTrainingService(store, reg, m, l, usecase.TrainingConfig{
		Timeframe:    domrepo.Timeframe(cfg.Training.Timeframe),
		LookbackBars: cfg.Training.LookbackBars,
		ModelDir:     cfg.Registry.ModelDir,
		Preparer:     preparerConfig(cfg),
		Model: model.Config{
			SequenceLength: cfg.Model.SequenceLength,
			HiddenSizes:    cfg.Model.HiddenSizes,
			Epochs:         cfg.Model.Epochs,
			BatchSize:      cfg.Model.BatchSize,
			LearningRate:   cfg.Model.LearningRate,
			Patience:       cfg.Model.Patience,
			ClipNorm:       cfg.Model.ClipNorm,
			Seed:           cfg.Model.Seed,
		},
	})
}

// ProvideTrainJob binds the training pipeline to the queue.
func ProvideTrainJob(trainer *usecase.TrainingService) *usecase.TrainJob {
	return usecase.NewTrainJob(trainer)
}

// ProvidePredictionService creates the forecast pipeline.
func ProvidePredictionService(
	store domrepo.PriceStore,
	reg *registry.Registry,
	publisher domrepo.ForecastPublisher,
	cacheSvc cache.Service,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.PredictionService {
	return usecase.NewPredictionService(store, reg, publisher, cacheSvc, m, l, usecase.PredictionConfig{
		Timeframe:   domrepo.Timeframe(cfg.Training.Timeframe),
		Preparer:    preparerConfig(cfg),
		ForecastTTL: cfg.Cache.ForecastTTL,
	})
}

// ProvideBarIngestHandler registers the handler for the bars topic.
func ProvideBarIngestHandler(store domrepo.PriceStore, m domrepo.Metrics, cfg *config.Config) *usecase.BarIngestHandler {
	return usecase.NewBarIngestHandler(cfg.Kafka.BarsTopic, store, m, domrepo.Timeframe(cfg.Training.Timeframe))
}

// ProvideOpsHandler creates the health endpoint handler.
func ProvideOpsHandler(store domrepo.PriceStore, reg *registry.Registry, l *applogger.Logger) *handler.OpsHandler {
	h := handler.NewOpsHandler(store, reg)
	h.SetLogger(l)
	return h
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	chClient *pkgch.Client,
	q *pkgqueue.RedisQueue,
	consumer *pkgkafka.Consumer,
	barHandler *usecase.BarIngestHandler,
	trainJob *usecase.TrainJob,
	predictor *usecase.PredictionService,
	publisher domrepo.ForecastPublisher,
	cacheSvc cache.Service,
	ops *handler.OpsHandler,
) *server.App {
	return server.New(cfg, l, chClient, q, consumer, barHandler, trainJob, predictor, publisher, cacheSvc, ops)
}
