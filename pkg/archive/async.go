package archive

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/toplog"
	"go.uber.org/zap"
)

// Async moves writes off the caller's goroutine onto a single worker, so
// rows reach the inner recorder in submission order. Write errors are logged.
type Async struct {
	inner   Recorder
	pool    pond.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewAsync wraps inner. Each write gets its own timeout.
func NewAsync(inner Recorder, logger *zap.Logger, queueSize int, timeout time.Duration) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 128
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{
		inner:   inner,
		pool:    pond.NewPool(1, pond.WithQueueSize(queueSize)),
		timeout: timeout,
		logger:  logger,
	}
}

func (a *Async) RecordChanges(_ context.Context, prefix string, at time.Time, records []diff.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := append([]diff.Record(nil), records...)
	a.submit("rank_changes", func(ctx context.Context) error {
		return a.inner.RecordChanges(ctx, prefix, at, batch)
	})
	return nil
}

func (a *Async) RecordReign(_ context.Context, prefix string, at time.Time, evt toplog.Event) error {
	if _, ok := ReignRowFor(prefix, at, evt); !ok {
		return nil
	}
	a.submit("reign", func(ctx context.Context) error {
		return a.inner.RecordReign(ctx, prefix, at, evt)
	})
	return nil
}

func (a *Async) submit(what string, write func(ctx context.Context) error) {
	a.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := write(ctx); err != nil {
			a.logger.Warn("Failed to archive history", zap.String("table", what), zap.Error(err))
		}
	})
}

// Close drains queued writes and closes the inner recorder.
func (a *Async) Close() error {
	a.pool.StopAndWait()
	return a.inner.Close()
}
