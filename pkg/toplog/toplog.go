// Package toplog keeps the durable history of who has held rank 1.
package toplog

import (
	"time"

	"github.com/canopy-network/ladder/pkg/leaderboard"
)

type Stat struct {
	Win  int `json:"win"`
	Lose int `json:"lose"`
}

// Entry is one reign record. StartTime is Unix milliseconds of the first
// time the user was seen on top.
type Entry struct {
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	CurrentStat   Stat   `json:"currentStat"`
	OriginalStat  Stat   `json:"originalStat"`
	ContinuousWin int    `json:"continuousWin"`
	StartTime     int64  `json:"startTime"`
	Ticks         int    `json:"ticks"`
}

// Started returns StartTime as a time.Time.
func (e Entry) Started() time.Time { return time.UnixMilli(e.StartTime) }

// Log is the persisted document. Entries accumulates one record per distinct
// user that has ever held the top; Entries[CurrentTopUserID] always exists
// once CurrentTopUserID is set.
type Log struct {
	Prefix           string            `json:"prefix"`
	CurrentTopUserID string            `json:"currentTopUserId"`
	Entries          map[string]*Entry `json:"entries"`
}

// Current returns the entry of the reigning user.
func (l *Log) Current() (*Entry, bool) {
	if l == nil || l.CurrentTopUserID == "" {
		return nil, false
	}
	e, ok := l.Entries[l.CurrentTopUserID]
	return e, ok
}

// Clone deep-copies the log so readers never share entries with the writer.
func (l *Log) Clone() *Log {
	if l == nil {
		return nil
	}
	out := &Log{Prefix: l.Prefix, CurrentTopUserID: l.CurrentTopUserID, Entries: make(map[string]*Entry, len(l.Entries))}
	for id, e := range l.Entries {
		cp := *e
		out.Entries[id] = &cp
	}
	return out
}

// valid checks the document invariant; loaded logs that fail it are treated as corrupt.
func (l *Log) valid() bool {
	if l.Entries == nil {
		return l.CurrentTopUserID == ""
	}
	if l.CurrentTopUserID == "" {
		return true
	}
	_, ok := l.Entries[l.CurrentTopUserID]
	return ok
}

// Challenger is the rank-1 row of the latest snapshot.
type Challenger struct {
	Name string
	Win  int
	Lose int
}

// FromEntry builds a Challenger from a leaderboard row.
func FromEntry(e leaderboard.Entry) Challenger {
	return Challenger{Name: e.Name, Win: e.Win, Lose: e.Lose}
}

type EventKind string

const (
	// EventFresh means a new log was started (none persisted, or the prefix changed).
	EventFresh EventKind = "fresh"
	// EventRetained means the reigning user kept the top.
	EventRetained EventKind = "retained"
	// EventChanged means a different user took the top.
	EventChanged EventKind = "changed"
)

// Event reports what one Update did.
type Event struct {
	Kind           EventKind `json:"kind"`
	Top            Entry     `json:"top"`
	PreviousUserID string    `json:"previousUserId,omitempty"`
	StreakBroken   bool      `json:"streakBroken,omitempty"`
}

// Update applies one poll tick to log. log is modified in place unless a
// fresh log is started; the returned log is the one to persist. Ticks only
// accrue while the ladder is open.
func Update(log *Log, prefix string, top Challenger, open bool, now time.Time) (*Log, Event) {
	id := leaderboard.NormalizeID(top.Name)
	prefix = leaderboard.NormalizeID(prefix)

	if log == nil || log.Prefix != prefix || log.Entries == nil {
		entry := newEntry(id, top, now)
		fresh := &Log{
			Prefix:           prefix,
			CurrentTopUserID: id,
			Entries:          map[string]*Entry{id: entry},
		}
		return fresh, Event{Kind: EventFresh, Top: *entry}
	}

	if id == log.CurrentTopUserID {
		entry, ok := log.Entries[id]
		if !ok {
			entry = newEntry(id, top, now)
			log.Entries[id] = entry
			return log, Event{Kind: EventRetained, Top: *entry}
		}
		if open {
			entry.Ticks++
		}
		broken := false
		if top.Lose > entry.CurrentStat.Lose {
			entry.ContinuousWin = 0
			broken = true
		} else if gained := top.Win - entry.CurrentStat.Win; gained > 0 {
			entry.ContinuousWin += gained
		}
		entry.CurrentStat = Stat{Win: top.Win, Lose: top.Lose}
		return log, Event{Kind: EventRetained, Top: *entry, StreakBroken: broken}
	}

	previous := log.CurrentTopUserID
	log.CurrentTopUserID = id
	entry, ok := log.Entries[id]
	if !ok {
		entry = newEntry(id, top, now)
		log.Entries[id] = entry
	}
	return log, Event{Kind: EventChanged, Top: *entry, PreviousUserID: previous}
}

func newEntry(id string, top Challenger, now time.Time) *Entry {
	stat := Stat{Win: top.Win, Lose: top.Lose}
	return &Entry{
		UserID:        id,
		Username:      top.Name,
		CurrentStat:   stat,
		OriginalStat:  stat,
		ContinuousWin: 0,
		StartTime:     now.UnixMilli(),
		Ticks:         1,
	}
}
