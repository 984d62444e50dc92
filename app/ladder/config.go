package ladder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/ladder/pkg/leaderboard"
	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/canopy-network/ladder/pkg/utils"
)

// Config is read from the environment once at startup.
type Config struct {
	OpenTime     scheduler.TimeOfDay
	CloseTime    scheduler.TimeOfDay
	Location     *time.Location
	Prefix       string
	Cutoff       int
	Multiplier   int
	PollInterval time.Duration

	Source          string
	SourceDelimiter rune
	Deadline        time.Time

	TopLogBackend string
	TopLogPath    string
	TopLogKey     string

	RedisEnabled bool
	RedisChannel string
	RedisStream  string

	ClickHouseEnabled bool
	ClickHouseDB      string

	Addr string
}

// LoadConfig reads LADDER_* and the shared REDIS_/CLICKHOUSE_ switches.
func LoadConfig() (Config, error) {
	cfg := Config{
		Prefix:            utils.Env("LADDER_PREFIX", ""),
		Cutoff:            utils.EnvInt("LADDER_CUTOFF", 10),
		Multiplier:        utils.EnvInt("LADDER_WINDOW_MULTIPLIER", 2),
		PollInterval:      utils.EnvDuration("LADDER_POLL_INTERVAL", scheduler.DefaultPollInterval),
		Source:            utils.Env("LADDER_SOURCE", "leaderboard.csv"),
		SourceDelimiter:   leaderboard.ParseDelimiter(utils.Env("LADDER_SOURCE_DELIMITER", ",")),
		TopLogBackend:     strings.ToLower(utils.Env("LADDER_TOPLOG_BACKEND", "file")),
		TopLogPath:        utils.Env("LADDER_TOPLOG_PATH", "toplog.json"),
		TopLogKey:         utils.Env("LADDER_TOPLOG_KEY", "ladder:toplog"),
		RedisEnabled:      utils.EnvBool("REDIS_ENABLED", false),
		RedisChannel:      utils.Env("LADDER_REDIS_CHANNEL", "ladder:announcements"),
		RedisStream:       utils.Env("LADDER_REDIS_STREAM", "ladder:events"),
		ClickHouseEnabled: utils.EnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseDB:      utils.Env("CLICKHOUSE_DB", "ladder"),
		Addr:              utils.Env("ADDR", ":3003"),
	}

	var err error
	if cfg.OpenTime, err = scheduler.ParseTimeOfDay(utils.Env("LADDER_OPEN_TIME", "06:00")); err != nil {
		return cfg, fmt.Errorf("LADDER_OPEN_TIME: %w", err)
	}
	if cfg.CloseTime, err = scheduler.ParseTimeOfDay(utils.Env("LADDER_CLOSE_TIME", "22:00")); err != nil {
		return cfg, fmt.Errorf("LADDER_CLOSE_TIME: %w", err)
	}
	if cfg.OpenTime.Equal(cfg.CloseTime) {
		return cfg, fmt.Errorf("LADDER_OPEN_TIME and LADDER_CLOSE_TIME are both %s", cfg.OpenTime)
	}
	if cfg.Location, err = time.LoadLocation(utils.Env("LADDER_TIMEZONE", "Local")); err != nil {
		return cfg, fmt.Errorf("LADDER_TIMEZONE: %w", err)
	}
	if raw := utils.Env("LADDER_DEADLINE", ""); raw != "" {
		if cfg.Deadline, err = time.Parse(time.RFC3339, raw); err != nil {
			return cfg, fmt.Errorf("LADDER_DEADLINE: %w", err)
		}
	}
	switch cfg.TopLogBackend {
	case "file", "redis":
	default:
		return cfg, fmt.Errorf("LADDER_TOPLOG_BACKEND: unknown backend %q", cfg.TopLogBackend)
	}
	if cfg.TopLogBackend == "redis" && !cfg.RedisEnabled {
		return cfg, errors.New("LADDER_TOPLOG_BACKEND=redis requires REDIS_ENABLED=true")
	}
	return cfg, nil
}
