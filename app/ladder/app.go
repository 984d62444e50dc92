package ladder

import (
	"context"
	"time"

	"github.com/canopy-network/ladder/app/ladder/types"
	"github.com/canopy-network/ladder/pkg/announce"
	"github.com/canopy-network/ladder/pkg/archive"
	"github.com/canopy-network/ladder/pkg/clock"
	"github.com/canopy-network/ladder/pkg/db/clickhouse"
	"github.com/canopy-network/ladder/pkg/ladder"
	"github.com/canopy-network/ladder/pkg/leaderboard"
	"github.com/canopy-network/ladder/pkg/logging"
	"github.com/canopy-network/ladder/pkg/redis"
	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/canopy-network/ladder/pkg/toplog"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal("Invalid ladder configuration", zap.Error(err))
	}

	// Redis is optional unless it also stores the top-log
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			if cfg.TopLogBackend == "redis" {
				logger.Fatal("Unable to connect to Redis for the top-log", zap.Error(err))
			}
			logger.Warn("Failed to initialize Redis client - announcements will not be published to Redis", zap.Error(err))
			redisClient = nil
		}
	} else {
		logger.Info("Redis disabled - announcements stay local")
	}

	var store toplog.Store
	switch cfg.TopLogBackend {
	case "redis":
		store = toplog.NewRedisStore(redisClient.GetClient(), cfg.TopLogKey)
	default:
		store = toplog.NewFileStore(cfg.TopLogPath)
	}

	var (
		chClient *clickhouse.Client
		reader   archive.HistoryReader
		recorder archive.Recorder = archive.Nop{}
	)
	if cfg.ClickHouseEnabled {
		chClient, err = clickhouse.New(ctx, logger.Named("clickhouse"), cfg.ClickHouseDB)
		if err != nil {
			logger.Warn("Failed to connect to ClickHouse - history will not be archived", zap.Error(err))
			chClient = nil
		} else if history, historyErr := archive.NewClickHouse(ctx, chClient, logger.Named("archive")); historyErr != nil {
			logger.Warn("Failed to prepare history tables - history will not be archived", zap.Error(historyErr))
			_ = chClient.Close()
			chClient = nil
		} else {
			reader = history
			recorder = archive.NewAsync(history, logger.Named("archive"), 256, 10*time.Second)
		}
	}

	source, err := leaderboard.NewSource(cfg.Source, cfg.SourceDelimiter, logger.Named("source"))
	if err != nil {
		logger.Fatal("Invalid leaderboard source", zap.Error(err))
	}

	sched, err := scheduler.New(scheduler.Config{
		OpenTime:     cfg.OpenTime,
		CloseTime:    cfg.CloseTime,
		Location:     cfg.Location,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		logger.Fatal("Invalid ladder schedule", zap.Error(err))
	}

	hub := announce.NewHub(logger.Named("ws"))
	sinks := []announce.Announcer{announce.Log{Logger: logger.Named("announce")}, hub}
	if redisClient != nil {
		sinks = append(sinks, &announce.Redis{
			Client:  redisClient,
			Channel: cfg.RedisChannel,
			Stream:  cfg.RedisStream,
			Logger:  logger.Named("announce.redis"),
		})
	}
	fanout := announce.NewFanout(logger.Named("announce"), len(sinks), 1024, sinks...)

	engine, err := ladder.New(ladder.Options{
		Prefix:           cfg.Prefix,
		Cutoff:           cfg.Cutoff,
		WindowMultiplier: cfg.Multiplier,
		Scheduler:        sched,
		Source:           source,
		Tracker:          toplog.NewTracker(store, logger.Named("toplog")),
		Announcer:        fanout,
		Archive:          recorder,
		Clock:            clock.System,
		Logger:           logger.Named("ladder"),
	})
	if err != nil {
		logger.Fatal("Unable to build the ladder engine", zap.Error(err))
	}

	logger.Info("Ladder configured",
		zap.String("prefix", engine.Prefix()),
		zap.Int("cutoff", cfg.Cutoff),
		zap.Int("window", engine.Window()),
		zap.String("source", source.Name()),
		zap.String("toplog_backend", cfg.TopLogBackend),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("clickhouse", chClient != nil))

	app := &types.App{
		Engine:           engine,
		Hub:              hub,
		Fanout:           fanout,
		RedisClient:      redisClient,
		ClickHouseClient: chClient,
		History:          reader,
		InitialDeadline:  cfg.Deadline,
		Logger:           logger,
	}
	return app
}
