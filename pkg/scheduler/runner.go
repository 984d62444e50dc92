package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/canopy-network/ladder/pkg/clock"
	"go.uber.org/zap"
)

// Handler executes the actions of one turn. It runs on the runner goroutine,
// so the next turn starts only after it returns.
type Handler func(ctx context.Context, now time.Time, actions []Action)

type command struct {
	fn   func(s *Scheduler, now time.Time)
	done chan struct{}
}

// Runner owns a Scheduler and drives it from a single goroutine. Other
// goroutines talk to it through Do and read published state through State.
type Runner struct {
	sched   *Scheduler
	clock   clock.Clock
	handler Handler
	logger  *zap.Logger

	cmds  chan command
	state atomic.Pointer[State]
}

func NewRunner(sched *Scheduler, clk clock.Clock, handler Handler, logger *zap.Logger) *Runner {
	if clk == nil {
		clk = clock.System
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		sched:   sched,
		clock:   clk,
		handler: handler,
		logger:  logger,
		cmds:    make(chan command),
	}
	r.publish()
	return r
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	r.logger.Info("Ladder scheduler running",
		zap.String("open", r.sched.cfg.OpenTime.String()),
		zap.String("close", r.sched.cfg.CloseTime.String()),
		zap.Duration("poll_interval", r.sched.cfg.PollInterval))

	for {
		r.turn(ctx, timer)

		select {
		case <-ctx.Done():
			r.logger.Info("Ladder scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		case cmd := <-r.cmds:
			cmd.fn(r.sched, r.clock.Now())
			r.publish()
			close(cmd.done)
		}
	}
}

func (r *Runner) turn(ctx context.Context, timer *time.Timer) {
	now := r.clock.Now()
	if actions := r.sched.Tick(now); len(actions) > 0 {
		for _, a := range actions {
			if a.Kind != ActionPoll {
				r.logger.Info("Ladder transition",
					zap.String("action", string(a.Kind)),
					zap.Time("target", a.Target),
					zap.Duration("lateness", now.Sub(a.Target)))
			}
		}
		if r.handler != nil {
			r.handler(ctx, now, actions)
		}
	}
	r.publish()

	now = r.clock.Now()
	wake, ok := r.sched.NextWake(now)
	if !ok {
		timer.Stop()
		return
	}
	timer.Reset(max(wake.Sub(now), 0))
}

func (r *Runner) publish() {
	st := r.sched.State()
	r.state.Store(&st)
}

// Do runs fn on the runner goroutine and waits for it.
func (r *Runner) Do(ctx context.Context, fn func(s *Scheduler, now time.Time)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetDeadline arms the deadline on the runner goroutine.
func (r *Runner) SetDeadline(ctx context.Context, when time.Time) error {
	var err error
	if doErr := r.Do(ctx, func(s *Scheduler, now time.Time) { err = s.SetDeadline(when, now) }); doErr != nil {
		return doErr
	}
	return err
}

// Start turns polling on.
func (r *Runner) Start(ctx context.Context) error {
	return r.Do(ctx, func(s *Scheduler, now time.Time) { s.Start(now) })
}

// Stop turns polling off.
func (r *Runner) Stop(ctx context.Context) error {
	return r.Do(ctx, func(s *Scheduler, _ time.Time) { s.Stop() })
}

// State returns the state published after the last turn.
func (r *Runner) State() State {
	return *r.state.Load()
}

// IsOpen reports the published open flag.
func (r *Runner) IsOpen() bool {
	return r.State().IsOpen
}
