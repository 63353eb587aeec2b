package di

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	"EstateDesk/internal/domain/service"
	"EstateDesk/internal/handler/api"
	mid "EstateDesk/internal/middleware"
	internalrepo "EstateDesk/internal/repository"
	"EstateDesk/internal/service/ratelimit"
	"EstateDesk/internal/services/alerts"
	"EstateDesk/internal/services/compliance"
	"EstateDesk/internal/services/features"
	"EstateDesk/internal/services/market"
	"EstateDesk/internal/services/notify"
	"EstateDesk/internal/usecase"
	"EstateDesk/pkg/cache"
	pkgch "EstateDesk/pkg/clickhouse"
	"EstateDesk/pkg/config"
	xhttp "EstateDesk/pkg/http"
	pkgkafka "EstateDesk/pkg/kafka"
	xlogger "EstateDesk/pkg/logger"
	"EstateDesk/pkg/metrics"
	"EstateDesk/pkg/queue"
	"EstateDesk/pkg/server"
)

// ProvideLogger builds the app logger. With a collect topic and a producer,
// error entries are aggregated and shipped to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*xlogger.Logger, func(), error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(xlogger.String("env", cfg.Environment))
	if cfg.Log.ErrorTopic != "" && producer != nil {
		l.EnableErrorDigest(xlogger.DigestConfig{
			Topic:       cfg.Log.ErrorTopic,
			Source:      "estatedesk/" + cfg.Environment,
			Publisher:   producer,
			FlushEvery:  cfg.Log.ErrorFlush,
			MaxDistinct: cfg.Log.ErrorMaxDistinct,
		})
	}
	return l, l.DisableErrorDigest, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRedisClient returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	client := rc.Client()
	return client, func() { _ = client.Close() }, nil
}

// ProvideCache layers an in-process cache over Redis, or runs memory-only.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, func()) {
	if client == nil {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(10_000))
		return mc, func() { _ = mc.Close() }
	}
	lc := cache.NewLayeredCache(
		cache.NewRedisCacheFromClient(client, cfg.Redis.KeyPrefix),
		cache.WithLayeredMemoryTTL(30*time.Second),
	)
	return lc, func() { _ = lc.Close() }
}

func ProvidePropertyStore(cfg *config.Config) (repository.PropertyStore, error) {
	store, err := internalrepo.LoadPropertyStore(cfg.Data.PropertiesFile, cfg.Data.Portfolios)
	if err != nil {
		return nil, fmt.Errorf("property store: %w", err)
	}
	return store, nil
}

func ProvidePreferenceStore(c cache.Service, cfg *config.Config) repository.PreferenceStore {
	return internalrepo.NewCachePreferenceStore(c, cfg.Redis.TTL)
}

func ProvideAlertStore(c cache.Service, cfg *config.Config) repository.AlertStore {
	return internalrepo.NewCacheAlertStore(c, cfg.Redis.TTL)
}

func ProvideDeliveryLedger(c cache.Service) repository.DeliveryLedger {
	return internalrepo.NewCacheDeliveryLedger(c, internalrepo.DefaultDeliveryTTL)
}

func ProvideSimulator(cfg *config.Config, logger *xlogger.Logger, m repository.Metrics) *market.Simulator {
	return market.NewSimulator(
		market.WithVolatility(cfg.Simulator.Volatility),
		market.WithBaseFrequency(cfg.Simulator.BaseFrequency),
		market.WithMultiplier(cfg.Simulator.Multiplier),
		market.WithTickerInterval(cfg.Simulator.TickerInterval),
		market.WithHistoryRetention(cfg.Simulator.HistoryRetention),
		market.WithSeed(cfg.Simulator.Seed),
		market.WithLogger(logger),
		market.WithMetrics(m),
	)
}

func ProvideMarketFeed(sim *market.Simulator) service.MarketFeed {
	return sim
}

func ProvideEvaluator() *compliance.Evaluator {
	return compliance.NewEvaluator()
}

func ProvidePatternAnalyzer() *features.PatternAnalyzer {
	return features.NewPatternAnalyzer()
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideClickHouseClient returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideClickHouseStorage(client *pkgch.Client, logger *xlogger.Logger) *internalrepo.ClickHouseStorage {
	if client == nil {
		return nil
	}
	return internalrepo.NewClickHouseStorage(client, logger)
}

// The three adapters below return untyped nil so callers can compare
// against nil.

func ProvideUpdateStorage(s *internalrepo.ClickHouseStorage) repository.UpdateStorage {
	if s == nil {
		return nil
	}
	return s
}

func ProvideSnapshotArchive(s *internalrepo.ClickHouseStorage) repository.SnapshotArchive {
	if s == nil {
		return nil
	}
	return s
}

func ProvideStorageInit(s *internalrepo.ClickHouseStorage) server.Initializer {
	if s == nil {
		return nil
	}
	return s
}

func ProvideUpdatePublisher(producer *pkgkafka.Producer, cfg *config.Config, logger *xlogger.Logger) repository.UpdatePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaUpdatePublisher(producer, cfg.Kafka.Topic, logger)
}

func ProvideUpdateProcessor(
	pub repository.UpdatePublisher,
	store repository.UpdateStorage,
	m repository.Metrics,
	logger *xlogger.Logger,
	cfg *config.Config,
) *usecase.UpdateProcessor {
	return usecase.NewUpdateProcessor(
		pub,
		store,
		m,
		logger,
		cfg.Broadcast.Backend,
		cfg.Broadcast.BatchSize,
		cfg.Broadcast.BatchTimeout,
	)
}

// ProvideMarketBroadcaster puts the rate-limiting pipeline between the
// simulator and the processor.
func ProvideMarketBroadcaster(
	feed service.MarketFeed,
	proc *usecase.UpdateProcessor,
	m repository.Metrics,
	logger *xlogger.Logger,
	cfg *config.Config,
) *usecase.MarketBroadcaster {
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Broadcast.MaxRPS),
		mid.WithBufferSize(cfg.Broadcast.BufferSize),
	)
	return usecase.NewMarketBroadcaster(feed, pipe, proc, m, logger, cfg.Broadcast.BufferSize)
}

func ProvideSnapshotRecorder(
	feed service.MarketFeed,
	archive repository.SnapshotArchive,
	m repository.Metrics,
	logger *xlogger.Logger,
	cfg *config.Config,
) *usecase.SnapshotRecorder {
	return usecase.NewSnapshotRecorder(feed, archive, m, logger, cfg.Simulator.SnapshotInterval)
}

func ProvideNotifier(cfg *config.Config, logger *xlogger.Logger) repository.Notifier {
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Notifier.Timeout),
		xhttp.WithUserAgent("EstateDesk-Notifier/1.0"),
	)
	return internalrepo.NewWebhookNotifier(client, cfg.Notifier.WebhookURL, logger)
}

// ProvideNotifyService applies configured channel preferences on top of the
// built-in defaults.
func ProvideNotifyService(n repository.Notifier, ledger repository.DeliveryLedger, logger *xlogger.Logger, cfg *config.Config) *notify.Service {
	prefs := make(map[models.Channel]models.ChannelPreference, len(cfg.Notifier.Channels))
	for name, ch := range cfg.Notifier.Channels {
		priorities := make([]models.Priority, 0, len(ch.Priorities))
		for _, p := range ch.Priorities {
			priorities = append(priorities, models.Priority(p))
		}
		prefs[models.Channel(name)] = models.ChannelPreference{
			Enabled:     ch.Enabled,
			Destination: ch.Destination,
			Priorities:  priorities,
		}
	}
	return notify.NewService(n, logger, notify.WithPreferences(prefs), notify.WithLedger(ledger))
}

// ProvideJobQueue picks the Redis queue when a client is available and
// registers the notification job.
func ProvideJobQueue(cfg *config.Config, logger *xlogger.Logger, client *redis.Client, svc *notify.Service) server.JobQueue {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	var q server.JobQueue
	if client != nil {
		q = queue.NewRedisQueue(logger, qc, client, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Queue.Prefix))
	} else {
		q = queue.NewMemoryQueue(logger, qc)
	}
	q.RegisterJob(usecase.NewNotificationJob(svc))
	return q
}

func ProvideNotificationQueue(q server.JobQueue) repository.NotificationQueue {
	return q
}

func ProvidePricedListings(props repository.PropertyStore, sim *market.Simulator) *usecase.PricedListings {
	return usecase.NewPricedListings(props, sim)
}

func ProvideAlertService(
	store repository.AlertStore,
	q repository.NotificationQueue,
	listings *usecase.PricedListings,
	logger *xlogger.Logger,
) *alerts.Service {
	return alerts.NewService(store, q, logger, alerts.WithListings(listings))
}

// ProvideAlertMonitor is started by the App only when no Kafka consumer
// handles market updates.
func ProvideAlertMonitor(
	cfg *config.Config,
	sim *market.Simulator,
	listings *usecase.PricedListings,
	svc *alerts.Service,
	m repository.Metrics,
	logger *xlogger.Logger,
) *usecase.AlertMonitor {
	return usecase.NewAlertMonitor(sim, listings, svc, m, logger, cfg.Alerts.CheckInterval)
}

func ProvideMarketUpdateHandler(
	cfg *config.Config,
	props repository.PropertyStore,
	svc *alerts.Service,
	m repository.Metrics,
) *usecase.MarketUpdateHandler {
	return usecase.NewMarketUpdateHandler(cfg.Kafka.Topic, props, svc, m, cfg.Alerts.CheckInterval)
}

// ProvideKafkaConsumer returns nil unless the consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, logger *xlogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(logger,
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
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Logger: logger, SlowThreshold: time.Second})
	return consumer, nil
}

func ProvideAPIHandler(
	cfg *config.Config,
	logger *xlogger.Logger,
	feed *usecase.PropertyFeed,
	market service.MarketFeed,
	analyzer *features.PatternAnalyzer,
	alertSvc *alerts.Service,
	notifySvc *notify.Service,
) *api.Handler {
	return api.NewHandler(logger, feed, market, analyzer, alertSvc, notifySvc,
		api.WithStreamOrigins(cfg.Server.StreamOrigins),
		api.WithStreamBuffer(cfg.Server.StreamBuffer),
	)
}

func ProvideHTTPServer(cfg *config.Config, logger *xlogger.Logger, h *api.Handler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMiddleware(ratelimit.Middleware(ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst))),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORSOrigins(cfg.Server.CORSOrigins))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	return xhttp.NewServer(logger, h, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *xlogger.Logger,
	props repository.PropertyStore,
	sim *market.Simulator,
	analyzer *features.PatternAnalyzer,
	recorder *usecase.SnapshotRecorder,
	broadcaster *usecase.MarketBroadcaster,
	proc *usecase.UpdateProcessor,
	jobs server.JobQueue,
	consumer *pkgkafka.Consumer,
	kh *usecase.MarketUpdateHandler,
	monitor *usecase.AlertMonitor,
	srv *xhttp.Server,
	storage server.Initializer,
) *server.App {
	return server.New(cfg, server.Deps{
		Logger:      logger,
		Properties:  props,
		Simulator:   sim,
		Analyzer:    analyzer,
		Recorder:    recorder,
		Broadcaster: broadcaster,
		Processor:   proc,
		Jobs:        jobs,
		Consumer:    consumer,
		Handler:     kh,
		Monitor:     monitor,
		HTTPServer:  srv,
		Storage:     storage,
	})
}
