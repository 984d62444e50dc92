package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/canopy-network/ladder/pkg/announce"
	"github.com/canopy-network/ladder/pkg/archive"
	"github.com/canopy-network/ladder/pkg/db/clickhouse"
	"github.com/canopy-network/ladder/pkg/ladder"
	"github.com/canopy-network/ladder/pkg/redis"
	"go.uber.org/zap"
)

type App struct {
	Engine *ladder.Engine
	// Hub streams announcements to websocket clients.
	Hub *announce.Hub
	// Fanout delivers announcements to every sink.
	Fanout *announce.Fanout
	// Optional backends, nil when disabled.
	RedisClient      *redis.Client
	ClickHouseClient *clickhouse.Client
	// History serves archived reigns; nil without ClickHouse.
	History archive.HistoryReader
	// Zap Logger
	Logger *zap.Logger
	// InitialDeadline is armed once the scheduler runs; zero leaves the loop idle.
	InitialDeadline time.Time
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start runs the scheduler and the HTTP server until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := a.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("Ladder scheduler stopped unexpectedly", zap.Error(err))
		}
	}()

	if !a.InitialDeadline.IsZero() {
		if err := a.Engine.SetDeadline(ctx, a.InitialDeadline); err != nil {
			a.Logger.Error("Failed to arm the configured deadline", zap.Error(err))
		} else {
			a.Logger.Info("Ladder deadline armed", zap.Time("deadline", a.InitialDeadline))
		}
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)
	<-runnerDone

	if a.Fanout != nil {
		a.Fanout.Close()
	}
	// closes ClickHouse through the archive
	if err := a.Engine.Close(); err != nil {
		a.Logger.Error("Failed to close history archive", zap.Error(err))
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}
	a.Logger.Info("さようなら!")
}
