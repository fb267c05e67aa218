package di

import (
	"context"
	"fmt"
	"time"

	"FinBars/internal/domain/repository"
	"FinBars/internal/handler/api"
	mid "FinBars/internal/middleware"
	internalrepo "FinBars/internal/repository"
	"FinBars/internal/scheduler"
	"FinBars/internal/service/cache"
	"FinBars/internal/service/finnhub"
	"FinBars/internal/services/candles"
	"FinBars/internal/usecase"
	pkgch "FinBars/pkg/clickhouse"
	"FinBars/pkg/config"
	xhttp "FinBars/pkg/http"
	pkgkafka "FinBars/pkg/kafka"
	xlogger "FinBars/pkg/logger"
	"FinBars/pkg/metrics"
	"FinBars/pkg/server"
	xutil "FinBars/pkg/util"
)

const initTimeout = 10 * time.Second

func baseMinutes(cfg *config.Config) int {
	return repository.NormalizeTimeframe(cfg.Pipeline.BaseTimeframe).Minutes()
}

func needsClickHouse(cfg *config.Config) bool {
	return cfg.Pipeline.Source == "clickhouse" || cfg.Storage.Type == "clickhouse" || cfg.Ingest.Enabled
}

func needsProducer(cfg *config.Config) bool {
	return cfg.Ingest.Enabled || cfg.Pipeline.Publish
}

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(xlogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when nothing
// in the config reads or writes ClickHouse.
func ProvideClickHouseClient(cfg *config.Config, log *xlogger.Logger) (*pkgch.Client, error) {
	if !needsClickHouse(cfg) {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.Pipeline.Workers+4, cfg.Pipeline.Workers),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	log.Info("clickhouse connected",
		xlogger.String("host", cfg.ClickHouse.Host),
		xlogger.String("database", cfg.ClickHouse.Database),
	)
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when neither live
// ingestion nor series publishing is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !needsProducer(cfg) {
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

// ProvideTickSource picks the pipeline's market-data backend.
func ProvideTickSource(cfg *config.Config, ch *pkgch.Client, log *xlogger.Logger) (repository.TickSource, error) {
	switch cfg.Pipeline.Source {
	case "finnhub":
		tf := repository.NormalizeTimeframe(cfg.Pipeline.BaseTimeframe)
		src, err := finnhub.NewCandleSource(cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey, tf, cfg.Finnhub.RequestTimeout, log)
		if err != nil {
			return nil, fmt.Errorf("finnhub candle source: %w", err)
		}
		return src, nil
	case "clickhouse":
		return internalrepo.NewClickHouseTickSource(ch, cfg.ClickHouse.Database, baseMinutes(cfg), log), nil
	}
	return nil, fmt.Errorf("unknown tick source %q", cfg.Pipeline.Source)
}

// ProvideSeriesStore opens and migrates the merged series store.
func ProvideSeriesStore(cfg *config.Config, ch *pkgch.Client, log *xlogger.Logger) (repository.SeriesStore, error) {
	var store repository.SeriesStore
	switch cfg.Storage.Type {
	case "clickhouse":
		store = internalrepo.NewClickHouseSeriesStore(ch, cfg.ClickHouse.Database, log)
	case "sqlite":
		s, err := internalrepo.NewSQLiteSeriesStore(cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("series store init: %w", err)
	}
	return store, nil
}

// ProvideSeriesPublisher publishes merged series to Kafka when enabled.
func ProvideSeriesPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.SeriesPublisher {
	if !cfg.Pipeline.Publish || producer == nil {
		return internalrepo.NoopSeriesPublisher{}
	}
	return internalrepo.NewKafkaSeriesPublisher(producer, cfg.Kafka.SeriesTopic)
}

// ProvideCache uses Redis when enabled, otherwise an in-process TTL cache.
func ProvideCache(cfg *config.Config, log *xlogger.Logger) (cache.BytesCache, error) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewTTLCache(0), nil
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	log.Info("redis cache connected", xlogger.String("addr", cfg.Cache.Redis.Addr))
	return rc, nil
}

// ProvidePipeline creates the tick-to-merged-series use case.
func ProvidePipeline(
	cfg *config.Config,
	source repository.TickSource,
	store repository.SeriesStore,
	publisher repository.SeriesPublisher,
	m repository.Metrics,
	log *xlogger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(source, store, publisher, m, log, cfg.Pipeline.Workers)
}

// ProvideCandlesUseCase creates the API-facing candles use case.
func ProvideCandlesUseCase(cfg *config.Config, p *usecase.Pipeline, store repository.SeriesStore, c cache.BytesCache, log *xlogger.Logger) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(p, store, c, cfg.Cache.TTL, log)
}

// ProvideHealthChecks lists the dependencies /healthz probes.
func ProvideHealthChecks(ch *pkgch.Client, store repository.SeriesStore) api.HealthChecks {
	checks := api.HealthChecks{
		"series_store": func(ctx context.Context) error {
			_, err := store.GetMerged(ctx, "__health__", time.Unix(0, 0), time.Unix(1, 0))
			return err
		},
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return checks
}

// ProvideCandlesHandler creates the HTTP handler.
func ProvideCandlesHandler(
	cfg *config.Config,
	log *xlogger.Logger,
	uc *usecase.CandlesUseCase,
	p *usecase.Pipeline,
	checks api.HealthChecks,
) *api.CandlesEchoHandler {
	return api.NewCandlesEchoHandler(log, uc, p, api.Defaults{
		Intervals:   cfg.Pipeline.Intervals,
		Lookback:    cfg.Pipeline.Lookback,
		BaseMinutes: baseMinutes(cfg),
		Publish:     cfg.Pipeline.Publish,
	}, checks)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.CandlesEchoHandler, log *xlogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
		xhttp.WithLogger(log),
	)
}

// ProvideScheduler creates the cron scheduler, or nil when neither a
// schedule nor run-on-start is configured.
func ProvideScheduler(cfg *config.Config, p *usecase.Pipeline, log *xlogger.Logger) (*scheduler.Scheduler, error) {
	if cfg.Pipeline.Schedule == "" && !cfg.Pipeline.RunOnStart {
		return nil, nil
	}
	interp, err := candles.ParseInterpolation(cfg.Pipeline.Interpolation)
	if err != nil {
		return nil, err
	}
	return scheduler.NewScheduler(p, scheduler.Job{
		Symbols: xutil.NormalizeSymbols(cfg.Pipeline.Symbols),
		Template: usecase.RunParams{
			Intervals:     cfg.Pipeline.Intervals,
			Interpolation: interp,
			Persist:       true,
			Publish:       cfg.Pipeline.Publish,
		},
		Lookback:    cfg.Pipeline.Lookback,
		BaseMinutes: baseMinutes(cfg),
		Timeout:     cfg.Pipeline.Timeout,
	}, log), nil
}

// ProvideTickCollector wires Finnhub WebSocket -> batcher -> Kafka tick topic.
func ProvideTickCollector(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics, log *xlogger.Logger) *usecase.TickCollector {
	if !cfg.Ingest.Enabled || producer == nil {
		return nil
	}
	stream := finnhub.NewStream(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		xutil.NormalizeSymbols(cfg.Pipeline.Symbols),
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		log,
	)
	publisher := internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TickTopic)
	batcher := mid.NewTickBatcher(publisher, m, log,
		mid.WithBatchSize(cfg.Ingest.BatchSize),
		mid.WithFlushInterval(cfg.Ingest.BatchTimeout),
		mid.WithMaxRPS(50),
	)
	return usecase.NewTickCollector(stream, batcher, m, log)
}

// ProvideKafkaConsumer creates the tick topic consumer when ingesting.
func ProvideKafkaConsumer(cfg *config.Config, log *xlogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Ingest.Enabled {
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
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(log))
	return consumer, nil
}

// ProvideKafkaTicksHandler stores consumed ticks in ClickHouse.
func ProvideKafkaTicksHandler(cfg *config.Config, ch *pkgch.Client, m repository.Metrics) (*usecase.KafkaTicksHandler, error) {
	if !cfg.Ingest.Enabled || ch == nil {
		return nil, nil
	}
	storage := internalrepo.NewClickHouseTickStorage(ch, cfg.ClickHouse.Database, "finnhub")
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := storage.Init(ctx); err != nil {
		return nil, fmt.Errorf("tick storage init: %w", err)
	}
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TickTopic, storage, m), nil
}

// ProvideApp assembles the application; disabled components stay nil.
func ProvideApp(
	cfg *config.Config,
	log *xlogger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	store repository.SeriesStore,
	c cache.BytesCache,
) *server.App {
	comp := server.Components{
		HTTP:      httpServer,
		Scheduler: sched,
		Collector: collector,
		Consumer:  consumer,
	}
	if kh != nil {
		comp.TicksHandler = kh
	}
	comp.Closers = append(comp.Closers,
		server.Closer{Name: "series_store", Closer: store},
		server.Closer{Name: "cache", Closer: c},
	)
	if producer != nil {
		comp.Closers = append(comp.Closers, server.Closer{Name: "kafka_producer", Closer: producer})
	}
	if ch != nil {
		comp.Closers = append(comp.Closers, server.Closer{Name: "clickhouse", Closer: ch})
	}
	return server.New(cfg, log, comp)
}
