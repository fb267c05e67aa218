//go:build wireinject
// +build wireinject

package di

import (
	"FinBars/pkg/config"
	"FinBars/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideTickSource,
		ProvideSeriesStore,
		ProvideSeriesPublisher,

		// Use cases
		ProvidePipeline,
		ProvideCandlesUseCase,
		ProvideTickCollector,
		ProvideKafkaConsumer,
		ProvideKafkaTicksHandler,
		ProvideScheduler,

		// HTTP
		ProvideHealthChecks,
		ProvideCandlesHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
