package scheduler_test

import (
	"testing"
	"time"

	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// day D is 2024-01-10, UTC throughout.
func at(day, hour, min, sec int) time.Time {
	return time.Date(2024, 1, day, hour, min, sec, 0, time.UTC)
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(scheduler.Config{
		OpenTime:     scheduler.MustTimeOfDay("06:00"),
		CloseTime:    scheduler.MustTimeOfDay("22:00"),
		Location:     time.UTC,
		PollInterval: time.Second,
	})
	require.NoError(t, err)
	return s
}

func kinds(actions []scheduler.Action) []scheduler.ActionKind {
	out := make([]scheduler.ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

func withoutPolls(actions []scheduler.Action) []scheduler.Action {
	out := actions[:0:0]
	for _, a := range actions {
		if a.Kind != scheduler.ActionPoll {
			out = append(out, a)
		}
	}
	return out
}

func TestNewRejectsEqualBoundaries(t *testing.T) {
	_, err := scheduler.New(scheduler.Config{
		OpenTime:  scheduler.MustTimeOfDay("06:00"),
		CloseTime: scheduler.MustTimeOfDay("06:00"),
	})
	require.Error(t, err)
}

func TestBootstrapAfterCloseStartsClosed(t *testing.T) {
	s := newScheduler(t)
	now := at(10, 23, 0, 0)

	assert.Equal(t, at(11, 22, 0, 0), s.NextClose(now))
	assert.Equal(t, at(11, 6, 0, 0), s.NextOpen(now))

	require.NoError(t, s.SetDeadline(at(20, 12, 0, 0), now))
	assert.True(t, s.LoopActive())
	assert.False(t, s.IsOpen())
	assert.True(t, s.Polling())

	st := s.State()
	assert.Equal(t, scheduler.PhaseClosed, st.Phase)
	require.NotNil(t, st.NextOpen)
	assert.Equal(t, at(11, 6, 0, 0), *st.NextOpen)
	assert.Nil(t, st.NextClose)

	actions := s.Tick(now)
	require.Equal(t, []scheduler.ActionKind{scheduler.ActionLoopStarted, scheduler.ActionPoll}, kinds(actions))
	assert.False(t, actions[0].Open)
}

func TestBootstrapDuringDayStartsOpen(t *testing.T) {
	s := newScheduler(t)
	now := at(10, 12, 0, 0)
	require.NoError(t, s.SetDeadline(at(20, 12, 0, 0), now))
	assert.True(t, s.IsOpen())

	actions := s.Tick(now)
	require.NotEmpty(t, actions)
	assert.Equal(t, scheduler.ActionLoopStarted, actions[0].Kind)
	assert.True(t, actions[0].Open)
}

func TestDailyLoopTransitions(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.SetDeadline(at(20, 12, 0, 0), at(10, 23, 0, 0)))
	s.Stop()
	s.Tick(at(10, 23, 0, 0))

	// Just before the open boundary nothing happens.
	assert.Empty(t, s.Tick(at(11, 5, 59, 59)))
	assert.False(t, s.IsOpen())

	actions := s.Tick(at(11, 6, 0, 0))
	require.Equal(t, []scheduler.ActionKind{scheduler.ActionOpen}, kinds(actions))
	assert.Equal(t, at(11, 6, 0, 0), actions[0].Target)
	assert.True(t, s.IsOpen())

	// Fires exactly once.
	assert.Empty(t, s.Tick(at(11, 6, 0, 1)))

	actions = s.Tick(at(11, 22, 0, 0))
	require.Equal(t, []scheduler.ActionKind{scheduler.ActionClose}, kinds(actions))
	assert.True(t, actions[0].Decay, "regular close applies decay")
	assert.False(t, s.IsOpen())
	require.NotNil(t, s.State().NextOpen)
	assert.Equal(t, at(12, 6, 0, 0), *s.State().NextOpen)
}

func TestNextWakeUsesMarginThenRecheck(t *testing.T) {
	s := newScheduler(t)
	start := at(10, 23, 0, 0)
	require.NoError(t, s.SetDeadline(at(20, 12, 0, 0), start))
	s.Stop()
	s.Tick(start)

	target := at(11, 6, 0, 0)
	wake, ok := s.NextWake(start)
	require.True(t, ok)
	assert.Equal(t, target.Add(-scheduler.Margin), wake)

	// Inside the margin: re-check on the short cadence until the target.
	inside := target.Add(-200 * time.Millisecond)
	wake, ok = s.NextWake(inside)
	require.True(t, ok)
	assert.Equal(t, inside.Add(scheduler.Recheck), wake)

	// A coarse timer that fired early does not trigger the transition.
	assert.Empty(t, s.Tick(target.Add(-scheduler.Margin)))
	assert.Empty(t, s.Tick(target.Add(-time.Millisecond)))
	assert.Equal(t, []scheduler.ActionKind{scheduler.ActionOpen}, kinds(s.Tick(target)))
}

func TestDeadlineWaitsForClock(t *testing.T) {
	s := newScheduler(t)
	start := at(10, 12, 0, 0)
	deadline := at(10, 18, 0, 0)
	require.NoError(t, s.SetDeadline(deadline, start))
	s.Tick(start)

	assert.Empty(t, withoutPolls(s.Tick(deadline.Add(-scheduler.Margin))))
	assert.Empty(t, withoutPolls(s.Tick(deadline.Add(-time.Nanosecond))))

	actions := s.Tick(deadline)
	require.Equal(t, []scheduler.ActionKind{scheduler.ActionClose, scheduler.ActionFinalCapture}, kinds(actions))
	assert.False(t, actions[0].Decay, "the deadline stop does not decay")
	assert.False(t, s.Polling(), "polling stops at the deadline")
	assert.False(t, s.IsOpen())

	// Fires once only.
	assert.Empty(t, s.Tick(deadline.Add(time.Minute)))

	// The next open boundary ends the loop instead of reopening.
	actions = s.Tick(at(11, 6, 0, 0))
	require.Equal(t, []scheduler.ActionKind{scheduler.ActionLoopEnded}, kinds(actions))
	assert.False(t, s.LoopActive())
	assert.False(t, s.IsOpen())

	_, ok := s.NextWake(at(11, 6, 0, 0))
	assert.False(t, ok, "nothing left armed")
}

func TestDeadlineWhileClosedKeepsPhase(t *testing.T) {
	s := newScheduler(t)
	start := at(10, 23, 0, 0)
	require.NoError(t, s.SetDeadline(at(11, 2, 0, 0), start))
	s.Tick(start)

	actions := withoutPolls(s.Tick(at(11, 2, 0, 0)))
	require.Equal(t, []scheduler.ActionKind{scheduler.ActionFinalCapture}, kinds(actions))
	assert.True(t, s.LoopActive(), "the loop ends at the next open boundary")
}

func TestSetDeadlineReplacesArmedDeadline(t *testing.T) {
	s := newScheduler(t)
	start := at(10, 12, 0, 0)
	require.NoError(t, s.SetDeadline(at(10, 14, 0, 0), start))
	s.Tick(start)
	require.NoError(t, s.SetDeadline(at(10, 16, 0, 0), start))

	// Updates do not bootstrap a second time.
	assert.Empty(t, withoutPolls(s.Tick(start)))
	assert.Empty(t, withoutPolls(s.Tick(at(10, 14, 0, 0))))

	actions := withoutPolls(s.Tick(at(10, 16, 0, 0)))
	assert.Equal(t, []scheduler.ActionKind{scheduler.ActionClose, scheduler.ActionFinalCapture}, kinds(actions))
	d, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, at(10, 16, 0, 0), d)
}

func TestSetDeadlineRejectsZero(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.SetDeadline(at(10, 18, 0, 0), at(10, 12, 0, 0)))

	err := s.SetDeadline(time.Time{}, at(10, 12, 0, 0))
	require.ErrorIs(t, err, scheduler.ErrInvalidDeadline)
	d, _ := s.Deadline()
	assert.Equal(t, at(10, 18, 0, 0), d, "prior deadline stays armed")
}

func TestNewDeadlineAfterLoopEndedRestartsLoop(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.SetDeadline(at(10, 13, 0, 0), at(10, 12, 0, 0)))
	s.Tick(at(10, 13, 0, 0))
	s.Tick(at(11, 6, 0, 0))
	require.False(t, s.LoopActive())

	now := at(11, 7, 0, 0)
	require.NoError(t, s.SetDeadline(at(15, 0, 0, 0), now))
	assert.True(t, s.LoopActive())
	assert.True(t, s.IsOpen())
	assert.Equal(t, scheduler.ActionLoopStarted, s.Tick(now)[0].Kind)
}

func TestPollingCadence(t *testing.T) {
	s := newScheduler(t)
	start := at(10, 12, 0, 0)
	s.Start(start)

	assert.Equal(t, []scheduler.ActionKind{scheduler.ActionPoll}, kinds(s.Tick(start)))
	assert.Empty(t, s.Tick(start.Add(500*time.Millisecond)))

	wake, ok := s.NextWake(start.Add(500 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Second), wake)
	assert.Equal(t, []scheduler.ActionKind{scheduler.ActionPoll}, kinds(s.Tick(start.Add(time.Second))))

	s.Stop()
	assert.Empty(t, s.Tick(start.Add(time.Hour)))
	_, ok = s.NextWake(start.Add(time.Hour))
	assert.False(t, ok, "no outstanding timers once stopped")
	assert.False(t, s.LoopActive(), "polling alone does not start the daily loop")
}
