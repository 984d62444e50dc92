package announce

import (
	"context"
	"runtime/debug"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Fanout hands each event to every sink on a shared worker pool so a slow
// sink never stalls the scheduler. Each sink runs on its own single-worker
// subpool, which keeps per-sink delivery in announcement order.
type Fanout struct {
	pool   pond.Pool
	sinks  []sink
	logger *zap.Logger
}

type sink struct {
	announcer Announcer
	pool      pond.Pool
}

// NewFanout creates a fan-out over sinks backed by a pool of workers with a
// bounded queue.
func NewFanout(logger *zap.Logger, workers, queueSize int, sinks ...Announcer) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 256
	}

	pool := pond.NewPool(workers, pond.WithQueueSize(queueSize))
	f := &Fanout{pool: pool, logger: logger}
	for _, a := range sinks {
		if a == nil {
			continue
		}
		f.sinks = append(f.sinks, sink{announcer: a, pool: pool.NewSubpool(1)})
	}
	return f
}

// Announce queues evt for every sink and returns immediately. The context is
// detached from cancellation because delivery outlives the caller's tick.
func (f *Fanout) Announce(ctx context.Context, evt Event) {
	deliveryCtx := context.WithoutCancel(ctx)
	for _, s := range f.sinks {
		s := s
		s.pool.Submit(func() {
			defer func() {
				if rec := recover(); rec != nil {
					f.logger.Error("Panic in announcement sink",
						zap.String("kind", string(evt.Kind)),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())))
				}
			}()
			s.announcer.Announce(deliveryCtx, evt)
		})
	}
}

// Close waits for queued deliveries and stops the pool.
func (f *Fanout) Close() {
	for _, s := range f.sinks {
		s.pool.StopAndWait()
	}
	f.pool.StopAndWait()
}
