//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"EstateDesk/internal/services/recommendation"
	"EstateDesk/internal/usecase"
	"EstateDesk/pkg/config"
	"EstateDesk/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Repositories
		ProvidePropertyStore,
		ProvidePreferenceStore,
		ProvideAlertStore,
		ProvideClickHouseStorage,
		ProvideUpdateStorage,
		ProvideSnapshotArchive,
		ProvideStorageInit,
		ProvideUpdatePublisher,
		ProvideNotifier,
		ProvideDeliveryLedger,

		// Domain services
		ProvideSimulator,
		ProvideMarketFeed,
		ProvideEvaluator,
		recommendation.NewEngine,
		ProvidePatternAnalyzer,
		ProvideNotifyService,
		ProvideJobQueue,
		ProvideNotificationQueue,
		ProvidePricedListings,
		ProvideAlertService,

		// Use cases
		usecase.NewPropertyFeed,
		ProvideUpdateProcessor,
		ProvideMarketBroadcaster,
		ProvideSnapshotRecorder,
		ProvideMarketUpdateHandler,
		ProvideAlertMonitor,
		ProvideKafkaConsumer,

		// HTTP
		ProvideAPIHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
