// Package archive keeps a history of rank changes and top-of-ladder reigns.
package archive

import (
	"context"
	"time"

	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/toplog"
)

// Recorder persists poll results. Failures are reported but never stop the ladder.
type Recorder interface {
	RecordChanges(ctx context.Context, prefix string, at time.Time, records []diff.Record) error
	RecordReign(ctx context.Context, prefix string, at time.Time, evt toplog.Event) error
	Close() error
}

// HistoryReader lists past reigns for a prefix, newest first.
type HistoryReader interface {
	History(ctx context.Context, prefix string, limit int) ([]ReignRow, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordChanges(context.Context, string, time.Time, []diff.Record) error { return nil }
func (Nop) RecordReign(context.Context, string, time.Time, toplog.Event) error   { return nil }
func (Nop) Close() error                                                         { return nil }

// ChangeRow is one row of the rank_changes table. Unranked positions are stored as 0.
type ChangeRow struct {
	Prefix     string    `ch:"prefix"`
	CapturedAt time.Time `ch:"captured_at"`
	UserID     string    `ch:"user_id"`
	Name       string    `ch:"name"`
	Elo        int64     `ch:"elo"`
	OldRank    uint32    `ch:"old_rank"`
	NewRank    uint32    `ch:"new_rank"`
	Movement   string    `ch:"movement"`
}

// ReignRow is one row of the reigns table, written whenever the top changes hands.
type ReignRow struct {
	Prefix         string    `ch:"prefix"`
	ObservedAt     time.Time `ch:"observed_at"`
	UserID         string    `ch:"user_id"`
	Username       string    `ch:"username"`
	PreviousUserID string    `ch:"previous_user_id"`
	Kind           string    `ch:"kind"`
	Win            uint32    `ch:"win"`
	Lose           uint32    `ch:"lose"`
	ContinuousWin  uint32    `ch:"continuous_win"`
	Ticks          uint64    `ch:"ticks"`
	StartedAt      time.Time `ch:"started_at"`
}

// ChangeRows converts diff records into table rows ordered by new rank.
func ChangeRows(prefix string, at time.Time, records []diff.Record) []ChangeRow {
	rows := make([]ChangeRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, ChangeRow{
			Prefix:     prefix,
			CapturedAt: at.UTC(),
			UserID:     r.ID,
			Name:       r.Name,
			Elo:        int64(r.Elo),
			OldRank:    storedRank(r.OldRank),
			NewRank:    storedRank(r.NewRank),
			Movement:   string(r.Movement()),
		})
	}
	return rows
}

// ReignRowFor returns the row for evt, or false when evt does not change the reign.
func ReignRowFor(prefix string, at time.Time, evt toplog.Event) (ReignRow, bool) {
	if evt.Kind != toplog.EventFresh && evt.Kind != toplog.EventChanged {
		return ReignRow{}, false
	}
	return ReignRow{
		Prefix:         prefix,
		ObservedAt:     at.UTC(),
		UserID:         evt.Top.UserID,
		Username:       evt.Top.Username,
		PreviousUserID: evt.PreviousUserID,
		Kind:           string(evt.Kind),
		Win:            nonNegative(evt.Top.CurrentStat.Win),
		Lose:           nonNegative(evt.Top.CurrentStat.Lose),
		ContinuousWin:  nonNegative(evt.Top.ContinuousWin),
		Ticks:          uint64(max(evt.Top.Ticks, 0)),
		StartedAt:      evt.Top.Started().UTC(),
	}, true
}

func storedRank(r diff.Rank) uint32 {
	if r == diff.Unranked || r < 0 {
		return 0
	}
	return uint32(r)
}

func nonNegative(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
