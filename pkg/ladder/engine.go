// Package ladder ties the scheduler to the leaderboard, the top-log and the
// announcement sinks.
package ladder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/canopy-network/ladder/pkg/announce"
	"github.com/canopy-network/ladder/pkg/archive"
	"github.com/canopy-network/ladder/pkg/clock"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/leaderboard"
	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/canopy-network/ladder/pkg/toplog"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const (
	DefaultCutoff           = 10
	DefaultWindowMultiplier = 2
)

// Options configures an Engine. Source, Tracker and Scheduler are required.
type Options struct {
	Prefix           string
	Cutoff           int
	WindowMultiplier int

	Scheduler *scheduler.Scheduler
	Source    leaderboard.Source
	Tracker   *toplog.Tracker
	Announcer announce.Announcer
	Archive   archive.Recorder
	Clock     clock.Clock
	Logger    *zap.Logger
}

// captures holds the last two successful polls of the active prefix.
type captures struct {
	prev, curr       leaderboard.Snapshot
	hasPrev, hasCurr bool
}

// Engine executes scheduler actions. Everything it mutates is touched only
// from the runner goroutine; readers get published copies.
type Engine struct {
	prefix           string
	cutoff           int
	windowMultiplier int

	runner    *scheduler.Runner
	source    leaderboard.Source
	tracker   *toplog.Tracker
	announcer announce.Announcer
	archive   archive.Recorder
	clock     clock.Clock
	logger    *zap.Logger

	// runner goroutine only
	open       bool
	sourceDown bool

	captures  atomic.Pointer[captures]
	snapshots *xsync.Map[string, leaderboard.Snapshot]
}

func New(opts Options) (*Engine, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Source == nil {
		return nil, errors.New("leaderboard source is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("top-log tracker is required")
	}
	if opts.Cutoff <= 0 {
		opts.Cutoff = DefaultCutoff
	}
	if opts.WindowMultiplier <= 0 {
		opts.WindowMultiplier = DefaultWindowMultiplier
	}
	if opts.Announcer == nil {
		opts.Announcer = announce.Nop
	}
	if opts.Archive == nil {
		opts.Archive = archive.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := &Engine{
		prefix:           leaderboard.NormalizeID(opts.Prefix),
		cutoff:           opts.Cutoff,
		windowMultiplier: opts.WindowMultiplier,
		source:           opts.Source,
		tracker:          opts.Tracker,
		announcer:        opts.Announcer,
		archive:          opts.Archive,
		clock:            opts.Clock,
		logger:           opts.Logger,
		snapshots:        xsync.NewMap[string, leaderboard.Snapshot](),
	}
	e.captures.Store(&captures{})
	e.runner = scheduler.NewRunner(opts.Scheduler, opts.Clock, e.Handle, opts.Logger.Named("scheduler"))
	return e, nil
}

// Run drives the schedule until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.runner.Run(ctx)
}

// Close flushes the archive.
func (e *Engine) Close() error {
	return e.archive.Close()
}

func (e *Engine) Prefix() string { return e.prefix }
func (e *Engine) Cutoff() int    { return e.cutoff }

// Window is the number of leading entries compared between polls.
func (e *Engine) Window() int { return e.cutoff * e.windowMultiplier }

func (e *Engine) State() scheduler.State { return e.runner.State() }
func (e *Engine) IsOpen() bool           { return e.runner.IsOpen() }

func (e *Engine) SetDeadline(ctx context.Context, when time.Time) error {
	return e.runner.SetDeadline(ctx, when)
}

func (e *Engine) Start(ctx context.Context) error { return e.runner.Start(ctx) }
func (e *Engine) Stop(ctx context.Context) error  { return e.runner.Stop(ctx) }

// Snapshot reads the ranking table for prefix right now. The active prefix
// is served from the last poll when one exists.
func (e *Engine) Snapshot(ctx context.Context, prefix string) (leaderboard.Snapshot, error) {
	prefix = leaderboard.NormalizeID(prefix)
	if prefix == e.prefix {
		if caps := e.captures.Load(); caps.hasCurr {
			return caps.curr, nil
		}
	}
	snap, err := leaderboard.Load(ctx, e.source, prefix, e.clock.Now())
	if err != nil {
		if cached, ok := e.snapshots.Load(prefix); ok {
			return cached, err
		}
		return snap, err
	}
	e.snapshots.Store(prefix, snap)
	return snap, nil
}

// Latest returns the last successful poll of the active prefix.
func (e *Engine) Latest() (leaderboard.Snapshot, bool) {
	caps := e.captures.Load()
	return caps.curr, caps.hasCurr
}

// Diffs compares the last two polls over the first window entries; window
// <= 0 uses the engine's window.
func (e *Engine) Diffs(window int) map[string]diff.Record {
	if window <= 0 {
		window = e.Window()
	}
	caps := e.captures.Load()
	if !caps.hasPrev || !caps.hasCurr {
		return map[string]diff.Record{}
	}
	return diff.Diff(caps.prev.Entries, caps.curr.Entries, window)
}

// TopLog returns the persisted top-log.
func (e *Engine) TopLog(ctx context.Context) *toplog.Log {
	return e.tracker.Current(ctx, e.prefix)
}

// Handle executes the actions of one scheduler turn in order.
func (e *Engine) Handle(ctx context.Context, now time.Time, actions []scheduler.Action) {
	for _, a := range actions {
		switch a.Kind {
		case scheduler.ActionLoopStarted:
			e.open = a.Open
			if a.Open {
				e.announce(ctx, now, announce.KindOpen, "The ladder is now open.", a)
			} else {
				e.announce(ctx, now, announce.KindClose, "The ladder is now closed.", a)
			}
		case scheduler.ActionOpen:
			e.open = true
			e.announce(ctx, now, announce.KindOpen, "The ladder is now open.", a)
		case scheduler.ActionClose:
			e.open = false
			e.announce(ctx, now, announce.KindClose, "The ladder is now closed.", a)
			if a.Decay {
				e.announce(ctx, now, announce.KindDecay, "Daily decay applies to every ladder entrant.", a)
			}
		case scheduler.ActionLoopEnded:
			e.open = false
			e.announce(ctx, now, announce.KindLoopEnded, "The ladder season is over.", a)
		case scheduler.ActionFinalCapture:
			e.finalCapture(ctx, now)
		case scheduler.ActionPoll:
			e.poll(ctx, now)
		default:
			e.logger.Warn("Unknown scheduler action", zap.String("action", string(a.Kind)))
		}
	}
}
