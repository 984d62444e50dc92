// Package scheduler drives the daily open/close loop, the competition
// deadline and leaderboard polling.
//
// Scheduler is a plain state machine: callers pass the current time to Tick
// and get back the actions that became due. Runner owns a Scheduler on a
// single goroutine and wakes it up at the times NextWake asks for.
//
// Every watcher is woken Margin before its target and then re-checked every
// Recheck until the clock has actually reached the target, so coarse timer
// drift can neither fire a transition early nor delay it by more than Recheck.
package scheduler

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Margin is how far ahead of a target the coarse wake-up lands.
	Margin = 500 * time.Millisecond
	// Recheck is the cadence of the fine-grained re-check inside the margin.
	Recheck = time.Millisecond
	// DefaultPollInterval is the leaderboard refresh cadence.
	DefaultPollInterval = time.Second
)

// ErrInvalidDeadline is returned by SetDeadline for unusable timestamps. The
// previously armed deadline, if any, stays in place.
var ErrInvalidDeadline = errors.New("invalid deadline")

type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseClosed Phase = "closed"
	PhaseOpen   Phase = "open"
)

type ActionKind string

const (
	// ActionLoopStarted is emitted once when SetDeadline bootstraps the loop.
	ActionLoopStarted ActionKind = "loop_started"
	ActionOpen        ActionKind = "open"
	ActionClose       ActionKind = "close"
	// ActionLoopEnded is emitted when an open boundary is reached after the deadline.
	ActionLoopEnded ActionKind = "loop_ended"
	// ActionFinalCapture is emitted once the deadline has really been reached.
	ActionFinalCapture ActionKind = "final_capture"
	ActionPoll         ActionKind = "poll"
)

// Action is one decision returned by Tick. Target is the scheduled instant
// the action was due at. Decay is only set on regular daily closes. Open is
// the starting phase for ActionLoopStarted.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target time.Time  `json:"target"`
	Decay  bool       `json:"decay,omitempty"`
	Open   bool       `json:"open,omitempty"`
}

type Config struct {
	OpenTime     TimeOfDay
	CloseTime    TimeOfDay
	Location     *time.Location
	PollInterval time.Duration
}

// State is a copy of the schedule for readers outside the owning goroutine.
type State struct {
	OpenTime   string     `json:"openTime"`
	CloseTime  string     `json:"closeTime"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Phase      Phase      `json:"phase"`
	IsOpen     bool       `json:"isOpen"`
	LoopActive bool       `json:"loopActive"`
	Polling    bool       `json:"polling"`
	NextOpen   *time.Time `json:"nextOpen,omitempty"`
	NextClose  *time.Time `json:"nextClose,omitempty"`
}

type watcher struct {
	target time.Time
	armed  bool
}

func (w *watcher) arm(target time.Time) {
	w.target = target
	w.armed = true
}

func (w *watcher) disarm() { w.armed = false }

func (w *watcher) due(now time.Time) bool {
	return w.armed && !now.Before(w.target)
}

// wake is the coarse wake-up while the target is more than Margin away and
// the re-check cadence after that.
func (w *watcher) wake(now time.Time) time.Time {
	if coarse := w.target.Add(-Margin); now.Before(coarse) {
		return coarse
	}
	return now.Add(Recheck)
}

func (w *watcher) targetPtr() *time.Time {
	if !w.armed {
		return nil
	}
	t := w.target
	return &t
}

// Scheduler is not safe for concurrent use.
type Scheduler struct {
	cfg Config

	phase      Phase
	loopActive bool

	openWatcher  watcher // armed while closed, targets the next open time
	closeWatcher watcher // armed while open, targets the next close time

	deadline        time.Time
	hasDeadline     bool
	deadlineWatcher watcher

	polling  bool
	nextPoll time.Time

	pending []Action
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.OpenTime.Equal(cfg.CloseTime) {
		return nil, fmt.Errorf("open and close time are both %s", cfg.OpenTime)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Scheduler{cfg: cfg, phase: PhaseIdle}, nil
}

func (s *Scheduler) local(now time.Time) time.Time { return now.In(s.cfg.Location) }

// NextOpen is the next daily open boundary after now.
func (s *Scheduler) NextOpen(now time.Time) time.Time { return s.cfg.OpenTime.Next(s.local(now)) }

// NextClose is the next daily close boundary after now.
func (s *Scheduler) NextClose(now time.Time) time.Time { return s.cfg.CloseTime.Next(s.local(now)) }

func (s *Scheduler) IsOpen() bool     { return s.phase == PhaseOpen }
func (s *Scheduler) LoopActive() bool { return s.loopActive }
func (s *Scheduler) Polling() bool    { return s.polling }

// Deadline returns the armed or last fired deadline.
func (s *Scheduler) Deadline() (time.Time, bool) { return s.deadline, s.hasDeadline }

// SetDeadline arms the competition deadline, replacing any armed one. The
// first arming also starts the daily loop when it is not running yet, in
// whichever phase has the later upcoming boundary.
func (s *Scheduler) SetDeadline(when, now time.Time) error {
	if when.IsZero() {
		return ErrInvalidDeadline
	}
	initial := !s.deadlineWatcher.armed

	s.deadline = when
	s.hasDeadline = true
	s.deadlineWatcher.arm(when)

	if initial && !s.loopActive {
		s.bootstrap(now)
	}
	return nil
}

func (s *Scheduler) bootstrap(now time.Time) {
	nextOpen := s.NextOpen(now)
	nextClose := s.NextClose(now)

	if nextOpen.Sub(now) < nextClose.Sub(now) {
		s.phase = PhaseClosed
		s.openWatcher.arm(nextOpen)
	} else {
		s.phase = PhaseOpen
		s.closeWatcher.arm(nextClose)
	}
	s.loopActive = true
	s.pending = append(s.pending, Action{Kind: ActionLoopStarted, Target: now, Open: s.phase == PhaseOpen})
	s.Start(now)
}

// Start turns leaderboard polling on; the first poll is due immediately.
func (s *Scheduler) Start(now time.Time) {
	if s.polling {
		return
	}
	s.polling = true
	s.nextPoll = now
}

// Stop turns polling off. No poll is due afterwards until Start.
func (s *Scheduler) Stop() {
	s.polling = false
}

func (s *Scheduler) deadlinePassed(now time.Time) bool {
	return s.hasDeadline && !now.Before(s.deadline)
}

// Tick fires every transition due at now, each exactly once, in a fixed
// order: deadline, open/close, poll.
func (s *Scheduler) Tick(now time.Time) []Action {
	actions := s.pending
	s.pending = nil

	if s.deadlineWatcher.due(now) {
		target := s.deadlineWatcher.target
		s.deadlineWatcher.disarm()
		s.Stop()
		if s.phase == PhaseOpen {
			actions = append(actions, s.close(now, target, false))
		}
		actions = append(actions, Action{Kind: ActionFinalCapture, Target: target})
	}

	if s.openWatcher.due(now) {
		target := s.openWatcher.target
		s.openWatcher.disarm()
		if s.deadlinePassed(now) {
			s.phase = PhaseIdle
			s.loopActive = false
			actions = append(actions, Action{Kind: ActionLoopEnded, Target: target})
		} else {
			s.phase = PhaseOpen
			s.closeWatcher.arm(s.NextClose(now))
			actions = append(actions, Action{Kind: ActionOpen, Target: target})
		}
	}

	if s.closeWatcher.due(now) {
		actions = append(actions, s.close(now, s.closeWatcher.target, true))
	}

	if s.polling && !now.Before(s.nextPoll) {
		actions = append(actions, Action{Kind: ActionPoll, Target: s.nextPoll})
		s.nextPoll = now.Add(s.cfg.PollInterval)
	}
	return actions
}

func (s *Scheduler) close(now, target time.Time, decay bool) Action {
	s.closeWatcher.disarm()
	s.phase = PhaseClosed
	s.openWatcher.arm(s.NextOpen(now))
	return Action{Kind: ActionClose, Target: target, Decay: decay}
}

// NextWake returns when Tick should run next. ok is false when nothing is
// armed and polling is off.
func (s *Scheduler) NextWake(now time.Time) (wake time.Time, ok bool) {
	consider := func(t time.Time) {
		if !ok || t.Before(wake) {
			wake, ok = t, true
		}
	}
	if len(s.pending) > 0 {
		consider(now)
	}
	for _, w := range []*watcher{&s.deadlineWatcher, &s.openWatcher, &s.closeWatcher} {
		if w.armed {
			consider(w.wake(now))
		}
	}
	if s.polling {
		consider(s.nextPoll)
	}
	return wake, ok
}

// State snapshots the schedule.
func (s *Scheduler) State() State {
	st := State{
		OpenTime:   s.cfg.OpenTime.String(),
		CloseTime:  s.cfg.CloseTime.String(),
		Phase:      s.phase,
		IsOpen:     s.IsOpen(),
		LoopActive: s.loopActive,
		Polling:    s.polling,
		NextOpen:   s.openWatcher.targetPtr(),
		NextClose:  s.closeWatcher.targetPtr(),
	}
	if s.hasDeadline {
		d := s.deadline
		st.Deadline = &d
	}
	return st
}
