package toplog

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/ladder/pkg/leaderboard"
	"go.uber.org/zap"
)

// Tracker runs the load-update-save cycle against a Store. It is not safe for
// concurrent Observe calls; the scheduler tick owns it.
type Tracker struct {
	store  Store
	logger *zap.Logger
}

func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, logger: logger}
}

// Observe feeds the top of snap into the persisted log and writes it back
// before returning. An empty snapshot leaves the log untouched.
func (t *Tracker) Observe(ctx context.Context, prefix string, snap leaderboard.Snapshot, open bool, now time.Time) (Event, *Log, error) {
	top, ok := snap.Top()
	if !ok {
		return Event{}, nil, nil
	}

	current := t.load(ctx)
	next, evt := Update(current, prefix, FromEntry(top), open, now)

	if err := t.store.Save(ctx, next); err != nil {
		return evt, next, fmt.Errorf("save top-log: %w", err)
	}

	if evt.Kind != EventRetained {
		t.logger.Info("Top of ladder updated",
			zap.String("kind", string(evt.Kind)),
			zap.String("user", evt.Top.UserID),
			zap.String("previous", evt.PreviousUserID))
	}
	return evt, next.Clone(), nil
}

// Current returns the persisted log, or an empty one for prefix when none
// can be read.
func (t *Tracker) Current(ctx context.Context, prefix string) *Log {
	if log := t.load(ctx); log != nil {
		return log
	}
	return &Log{Prefix: leaderboard.NormalizeID(prefix), Entries: map[string]*Entry{}}
}

func (t *Tracker) load(ctx context.Context) *Log {
	log, err := t.store.Load(ctx)
	if err != nil {
		t.logger.Warn("Discarding unreadable top-log", zap.Error(err))
		return nil
	}
	return log
}
