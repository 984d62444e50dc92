// Package announce delivers ladder notifications to the reporting layer.
package announce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind names an announcement type.
type Kind string

const (
	KindOpen        Kind = "ladder.open"
	KindClose       Kind = "ladder.close"
	KindDecay       Kind = "ladder.decay"
	KindLoopEnded   Kind = "ladder.loop_ended"
	KindFinal       Kind = "ladder.final"
	KindChanged     Kind = "leaderboard.changed"
	KindCrossed     Kind = "leaderboard.crossed"
	KindTopFresh    Kind = "toplog.fresh"
	KindTopChanged  Kind = "toplog.changed"
	KindUnavailable Kind = "source.unavailable"
	KindRestored    Kind = "source.restored"
)

// Event is a single announcement. Text is the human-readable line; Data
// carries the structured payload for machine consumers.
type Event struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Announcer receives events. Implementations must not block the caller for
// long and must not report delivery failures back.
type Announcer interface {
	Announce(ctx context.Context, evt Event)
}

// Func adapts a function to Announcer.
type Func func(ctx context.Context, evt Event)

func (f Func) Announce(ctx context.Context, evt Event) { f(ctx, evt) }

// Nop drops every event.
var Nop Announcer = Func(func(context.Context, Event) {})

// Log writes events to a zap logger.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Announce(_ context.Context, evt Event) {
	l.Logger.Info(evt.Text,
		zap.String("kind", string(evt.Kind)),
		zap.Time("at", evt.At),
		zap.Any("data", evt.Data))
}

// Multi delivers to each announcer in turn on the caller's goroutine.
type Multi []Announcer

func (m Multi) Announce(ctx context.Context, evt Event) {
	for _, a := range m {
		a.Announce(ctx, evt)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Announce(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Kind
	}
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
