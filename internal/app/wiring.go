package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"engagehub/internal/config"
	"engagehub/internal/leaderboard"
	"engagehub/internal/metrics"
	"engagehub/internal/notify"
	"engagehub/internal/sink"
	"engagehub/internal/stream"
)

// Container holds every long-lived dependency the host process needs after
// wiring: the App itself plus the pieces an embedder may want direct access
// to (the processor and leaderboard for a custom API layer, the registry for
// a metrics endpoint).
type Container struct {
	app *App

	Processor   *stream.Processor
	Leaderboard *leaderboard.Engine
	Registry    *prometheus.Registry

	redisClient *goredis.Client
	cleanupF    func()
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown failed: %w", err)
	}

	if c.cleanupF != nil {
		c.cleanupF()
	}
	return nil
}

// Build constructs the Event Stream Processor, the Leaderboard Engine and
// whichever optional backends are configured, logger first, then
// infrastructure, then the App itself.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")
	alert := alerting.NewAlerting(lg, nil)

	processor, err := stream.New(stream.Config{
		BufferSize:           cfg.Stream.BufferSize,
		NumThreads:           cfg.Stream.NumThreads,
		BatchSize:            cfg.Stream.BatchSize,
		FlushIntervalMs:      cfg.Stream.FlushIntervalMs,
		FrequencyDepth:       cfg.Stream.FrequencyDepth,
		FrequencyWidth:       cfg.Stream.FrequencyWidth,
		CardinalityPrecision: cfg.Stream.CardinalityPrecision,
	}, lg)
	if err != nil {
		lg.Panicf("Failed to initialize stream processor: %v", err)
	}
	lg.Info("Successfully initialize stream processor")

	lb, err := leaderboard.New(leaderboard.Config{
		DecayFactor: cfg.Leaderboard.DecayFactor,
		MaxUsers:    cfg.Leaderboard.MaxUsers,
	})
	if err != nil {
		lg.Panicf("Failed to initialize leaderboard engine: %v", err)
	}
	lg.Info("Successfully initialize leaderboard engine")

	var redisClient *goredis.Client
	var redisStore *leaderboard.RedisStore
	if cfg.Stores.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Stores.Redis.Addr,
			Username:     cfg.Stores.Redis.Username,
			Password:     cfg.Stores.Redis.Password,
			DB:           cfg.Stores.Redis.DB,
			DialTimeout:  cfg.Stores.Redis.DialTimeout,
			ReadTimeout:  cfg.Stores.Redis.ReadTimeout,
			WriteTimeout: cfg.Stores.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			lg.Panicf("Failed to connect to redis: %v", err)
		}
		redisStore = leaderboard.NewRedisStore(redisClient, cfg.Stores.Redis.SnapshotKey, lg)
		lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)
	}

	restoreOnBoot(ctx, lb, redisStore, cfg.App.SnapshotPath, alert)

	var sinkCloser io.Closer
	if cfg.Stores.ClickHouse.Enabled {
		chSink, err := sink.NewClickHouseSink(ctx, sink.ClickHouseConfig{
			DSN:          cfg.Stores.ClickHouse.DSN,
			Table:        cfg.Stores.ClickHouse.Table,
			MaxRetries:   cfg.Stores.ClickHouse.MaxRetries,
			RetryBackoff: cfg.Stores.ClickHouse.RetryBackoff,
		}, lg)
		if err != nil {
			lg.Panicf("Failed to initialize clickhouse sink: %v", err)
		}
		processor.SetFlushCallback(chSink.Flush)
		sinkCloser = chSink
		lg.Info("Successfully initialize clickhouse sink")
	}

	var publisher notify.Publisher = notify.NoopPublisher{}
	if cfg.PubSub.NATS.Enabled {
		natsPub, err := notify.Connect(notify.Config{
			URL:           cfg.PubSub.NATS.URL,
			SubjectPrefix: cfg.PubSub.NATS.SubjectPrefix,
		}, lg)
		if err != nil {
			lg.Panicf("Failed to initialize nats publisher: %v", err)
		}
		publisher = natsPub
		lg.Infof("Successfully initialize nats publisher, url=%s", cfg.PubSub.NATS.URL)
	}

	registry := metrics.NewRegistry(cfg.Metrics.Namespace, processor, lb)
	lg.Info("Successfully initialize metrics registry")

	application := New(alert, processor, lb, publisher, sinkCloser, redisStore, cfg.App.SnapshotInterval, cfg.App.SnapshotPath)

	c := &Container{
		app:         application,
		Processor:   processor,
		Leaderboard: lb,
		Registry:    registry,
		redisClient: redisClient,
	}

	c.cleanupF = func() {
		if c.redisClient != nil {
			if err := c.redisClient.Close(); err != nil {
				lg.Errorf("Failed to close redis client: %v", err)
			}
		}
		lg.Info("Successfully cleaned up dependencies")
	}

	lg.Info("Successfully initialize wiring")
	return c, c.cleanupF, nil
}
