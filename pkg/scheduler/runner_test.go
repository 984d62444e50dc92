package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/ladder/pkg/clock"
	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu      sync.Mutex
	actions []scheduler.Action
	seenAt  map[scheduler.ActionKind]time.Time
}

func (r *recorder) handle(_ context.Context, now time.Time, actions []scheduler.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seenAt == nil {
		r.seenAt = map[scheduler.ActionKind]time.Time{}
	}
	for _, a := range actions {
		r.actions = append(r.actions, a)
		if _, ok := r.seenAt[a.Kind]; !ok {
			r.seenAt[a.Kind] = now
		}
	}
}

func (r *recorder) count(kind scheduler.ActionKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) firstSeen(kind scheduler.ActionKind) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.seenAt[kind]
	return t, ok
}

// farBoundaries keeps the daily loop out of the way: both boundaries are
// hours from now.
func farBoundaries(t *testing.T, now time.Time) scheduler.Config {
	t.Helper()
	open, err := scheduler.NewTimeOfDay((now.Hour()+6)%24, 0, 0)
	require.NoError(t, err)
	closing, err := scheduler.NewTimeOfDay((now.Hour()+12)%24, 0, 0)
	require.NoError(t, err)
	return scheduler.Config{OpenTime: open, CloseTime: closing, Location: now.Location(), PollInterval: 20 * time.Millisecond}
}

func TestRunnerPollsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := scheduler.New(farBoundaries(t, time.Now()))
	require.NoError(t, err)
	rec := &recorder{}
	runner := scheduler.NewRunner(s, clock.System, rec.handle, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Run(ctx)
	}()

	require.NoError(t, runner.Start(ctx))
	assert.True(t, runner.State().Polling)
	require.Eventually(t, func() bool { return rec.count(scheduler.ActionPoll) >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, runner.Stop(ctx))
	assert.False(t, runner.State().Polling)
	stopped := rec.count(scheduler.ActionPoll)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, stopped, rec.count(scheduler.ActionPoll))

	cancel()
	<-done
}

func TestRunnerDeadlineNeverFiresEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := scheduler.New(farBoundaries(t, time.Now()))
	require.NoError(t, err)
	rec := &recorder{}
	runner := scheduler.NewRunner(s, clock.System, rec.handle, zaptest.NewLogger(t))
	go func() { _ = runner.Run(ctx) }()

	deadline := time.Now().Add(700 * time.Millisecond)
	require.NoError(t, runner.SetDeadline(ctx, deadline))
	assert.True(t, runner.State().LoopActive)

	require.Eventually(t, func() bool {
		_, ok := rec.firstSeen(scheduler.ActionFinalCapture)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	firedAt, _ := rec.firstSeen(scheduler.ActionFinalCapture)
	assert.False(t, firedAt.Before(deadline), "fired %s before the deadline", deadline.Sub(firedAt))
	assert.Less(t, firedAt.Sub(deadline), 250*time.Millisecond)
	assert.Equal(t, 1, rec.count(scheduler.ActionFinalCapture))
	assert.Equal(t, 1, rec.count(scheduler.ActionLoopStarted))
	require.Eventually(t, func() bool { return !runner.State().Polling }, time.Second, 5*time.Millisecond)
}

func TestRunnerRejectsInvalidDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := scheduler.New(farBoundaries(t, time.Now()))
	require.NoError(t, err)
	runner := scheduler.NewRunner(s, nil, nil, nil)
	go func() { _ = runner.Run(ctx) }()

	require.ErrorIs(t, runner.SetDeadline(ctx, time.Time{}), scheduler.ErrInvalidDeadline)
	assert.False(t, runner.State().LoopActive)
	assert.False(t, runner.IsOpen())
}

func TestRunnerDoHonoursContext(t *testing.T) {
	s, err := scheduler.New(farBoundaries(t, time.Now()))
	require.NoError(t, err)
	runner := scheduler.NewRunner(s, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// Run was never started, so the command cannot be delivered.
	require.ErrorIs(t, runner.Start(ctx), context.DeadlineExceeded)
}
