package ladder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/ladder/pkg/announce"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/leaderboard"
	"github.com/canopy-network/ladder/pkg/toplog"
	"go.uber.org/zap"
)

// ChangeReport is the payload of leaderboard change announcements.
type ChangeReport struct {
	Prefix  string        `json:"prefix"`
	Cutoff  int           `json:"cutoff"`
	Records []diff.Record `json:"records"`
}

// Standings is the payload of the final announcement.
type Standings struct {
	Prefix  string              `json:"prefix"`
	Cutoff  int                 `json:"cutoff"`
	Entries []leaderboard.Entry `json:"entries"`
}

// poll runs one build, diff, top-log cycle. A failed read keeps the previous
// captures and only reports the outage.
func (e *Engine) poll(ctx context.Context, now time.Time) (leaderboard.Snapshot, bool) {
	snap, err := leaderboard.Load(ctx, e.source, e.prefix, now)
	if err != nil {
		e.logger.Warn("Leaderboard poll failed", zap.String("source", e.source.Name()), zap.Error(err))
		if !e.sourceDown {
			e.sourceDown = true
			e.announce(ctx, now, announce.KindUnavailable,
				"The leaderboard is currently unavailable.", map[string]string{"source": e.source.Name(), "error": err.Error()})
		}
		return snap, false
	}
	if e.sourceDown {
		e.sourceDown = false
		e.announce(ctx, now, announce.KindRestored,
			"The leaderboard is available again.", map[string]string{"source": e.source.Name()})
	}

	last := e.captures.Load()
	next := &captures{prev: last.curr, hasPrev: last.hasCurr, curr: snap, hasCurr: true}
	e.captures.Store(next)
	e.snapshots.Store(snap.Prefix, snap)

	var records map[string]diff.Record
	if next.hasPrev {
		records = diff.Diff(next.prev.Entries, snap.Entries, e.Window())
	}

	evt, _, err := e.tracker.Observe(ctx, e.prefix, snap, e.open, now)
	if err != nil {
		e.logger.Warn("Failed to persist top-log", zap.Error(err))
	}

	e.reportChanges(ctx, now, records)
	e.reportTop(ctx, now, evt)

	if len(records) > 0 {
		if err := e.archive.RecordChanges(ctx, e.prefix, now, diff.Sorted(records)); err != nil {
			e.logger.Warn("Failed to archive rank changes", zap.Error(err))
		}
	}
	if evt.Kind != "" {
		if err := e.archive.RecordReign(ctx, e.prefix, now, evt); err != nil {
			e.logger.Warn("Failed to archive reign", zap.Error(err))
		}
	}
	return snap, true
}

func (e *Engine) finalCapture(ctx context.Context, now time.Time) {
	snap, ok := e.poll(ctx, now)
	if !ok {
		last, has := e.Latest()
		if !has {
			e.announce(ctx, now, announce.KindFinal, "The ladder has ended. No final standings are available.",
				Standings{Prefix: e.prefix, Cutoff: e.cutoff, Entries: []leaderboard.Entry{}})
			return
		}
		snap = last
	}

	top := snap.Window(e.cutoff)
	e.announce(ctx, now, announce.KindFinal, FormatStandings(top),
		Standings{Prefix: e.prefix, Cutoff: e.cutoff, Entries: top})
}

func (e *Engine) reportChanges(ctx context.Context, now time.Time, records map[string]diff.Record) {
	if len(records) == 0 {
		return
	}
	if changed := diff.Changed(records, e.cutoff); len(changed) > 0 {
		e.announce(ctx, now, announce.KindChanged, FormatChanges(changed),
			ChangeReport{Prefix: e.prefix, Cutoff: e.cutoff, Records: changed})
	}
	if crossed := diff.Crossed(records, e.cutoff); len(crossed) > 0 {
		e.announce(ctx, now, announce.KindCrossed, FormatCrossings(crossed, e.cutoff),
			ChangeReport{Prefix: e.prefix, Cutoff: e.cutoff, Records: crossed})
	}
}

func (e *Engine) reportTop(ctx context.Context, now time.Time, evt toplog.Event) {
	switch evt.Kind {
	case toplog.EventFresh:
		e.announce(ctx, now, announce.KindTopFresh,
			fmt.Sprintf("%s is at the top of the ladder.", evt.Top.Username), evt)
	case toplog.EventChanged:
		e.announce(ctx, now, announce.KindTopChanged,
			fmt.Sprintf("%s took the top of the ladder from %s.", evt.Top.Username, evt.PreviousUserID), evt)
	}
}

func (e *Engine) announce(ctx context.Context, now time.Time, kind announce.Kind, text string, data any) {
	e.announcer.Announce(ctx, announce.Event{Kind: kind, Text: text, At: now, Data: data})
}

// FormatChanges renders records as "name old→new" pairs.
func FormatChanges(records []diff.Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, fmt.Sprintf("%s %s→%s", r.Name, formatRank(r.OldRank), formatRank(r.NewRank)))
	}
	return "Ladder changes: " + strings.Join(parts, ", ")
}

// FormatCrossings renders promotions into and demotions out of the top cutoff.
func FormatCrossings(records []diff.Record, cutoff int) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		if int(r.NewRank) <= cutoff {
			parts = append(parts, fmt.Sprintf("%s entered the top %d at #%d", r.Name, cutoff, r.NewRank))
		} else {
			parts = append(parts, fmt.Sprintf("%s dropped out of the top %d", r.Name, cutoff))
		}
	}
	return strings.Join(parts, "; ")
}

// FormatStandings renders the final table one entrant per line.
func FormatStandings(entries []leaderboard.Entry) string {
	var b strings.Builder
	b.WriteString("Final standings:")
	for i, entry := range entries {
		fmt.Fprintf(&b, "\n%d. %s (%d) %d-%d", i+1, entry.Name, entry.Elo, entry.Win, entry.Lose)
	}
	return b.String()
}

func formatRank(r diff.Rank) string {
	if r == diff.Unranked {
		return "-"
	}
	return fmt.Sprintf("%d", int(r))
}
