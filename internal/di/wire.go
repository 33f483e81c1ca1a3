//go:build wireinject
// +build wireinject

package di

import (
	"CoinSage/pkg/config"
	"CoinSage/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCache,
		ProvideQueue,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvidePriceStore,
		ProvideRegistry,
		ProvideForecastPublisher,

		// Use cases
		ProvideTrainingService,
		ProvideTrainJob,
		ProvidePredictionService,
		ProvideBarIngestHandler,

		// HTTP
		ProvideOpsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
