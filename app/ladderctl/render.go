package ladderctl

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/canopy-network/ladder/pkg/announce"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/leaderboard"
	"github.com/canopy-network/ladder/pkg/toplog"
	"github.com/fatih/color"
)

var (
	upColor      = color.New(color.FgGreen)
	downColor    = color.New(color.FgRed)
	enteredColor = color.New(color.FgCyan)
	exitedColor  = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	topColor     = color.New(color.FgHiMagenta, color.Bold)
)

// RenderSnapshot prints the ladder one row per entrant, marking the cutoff line.
func RenderSnapshot(w io.Writer, snap leaderboard.Snapshot, cutoff int) {
	prefix := snap.Prefix
	if prefix == "" {
		prefix = "(all)"
	}
	fmt.Fprintf(w, "Ladder %s: %d entrants\n", prefix, snap.Len())
	for i, e := range snap.Entries {
		line := fmt.Sprintf("%4d  %-24s %6d  %d-%d", e.Rank, e.Name, e.Elo, e.Win, e.Lose)
		if i == 0 {
			line = topColor.Sprint(line)
		}
		fmt.Fprintln(w, line)
		if cutoff > 0 && i+1 == cutoff && i+1 < snap.Len() {
			fmt.Fprintln(w, dimColor.Sprintf("      --- top %d ---", cutoff))
		}
	}
}

// Arrow renders the movement marker of r.
func Arrow(r diff.Record) string {
	switch r.Movement() {
	case diff.Up:
		return upColor.Sprintf("▲%d", r.Delta())
	case diff.Down:
		return downColor.Sprintf("▼%d", -r.Delta())
	case diff.Entered:
		return enteredColor.Sprint("NEW")
	case diff.Exited:
		return exitedColor.Sprint("OUT")
	default:
		return "="
	}
}

// RenderDiff prints the records split into changes and cutoff crossings.
func RenderDiff(w io.Writer, records map[string]diff.Record, cutoff int) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No rank changes.")
		return
	}
	section := func(title string, rs []diff.Record) {
		if len(rs) == 0 {
			return
		}
		fmt.Fprintln(w, title)
		for _, r := range rs {
			fmt.Fprintf(w, "  %-6s %-24s %s → %s\n", Arrow(r), r.Name, rankText(r.OldRank), rankText(r.NewRank))
		}
	}
	section("Changes:", diff.Changed(records, cutoff))
	section(fmt.Sprintf("Top %d crossings:", cutoff), diff.Crossed(records, cutoff))
}

// RenderTopLog prints the reigning user first, then the others by tenure.
func RenderTopLog(w io.Writer, log *toplog.Log) {
	if log == nil || len(log.Entries) == 0 {
		fmt.Fprintln(w, "Top-log is empty.")
		return
	}
	fmt.Fprintf(w, "Top-log for prefix %q\n", log.Prefix)

	ids := make([]string, 0, len(log.Entries))
	for id := range log.Entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := log.Entries[ids[i]], log.Entries[ids[j]]
		if (ids[i] == log.CurrentTopUserID) != (ids[j] == log.CurrentTopUserID) {
			return ids[i] == log.CurrentTopUserID
		}
		if a.Ticks != b.Ticks {
			return a.Ticks > b.Ticks
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		e := log.Entries[id]
		line := fmt.Sprintf("%-24s ticks=%-6d streak=%-3d %d-%d (from %d-%d) since %s",
			e.Username, e.Ticks, e.ContinuousWin,
			e.CurrentStat.Win, e.CurrentStat.Lose,
			e.OriginalStat.Win, e.OriginalStat.Lose,
			e.Started().UTC().Format(time.RFC3339))
		if id == log.CurrentTopUserID {
			line = topColor.Sprint("* " + line)
		} else {
			line = "  " + line
		}
		fmt.Fprintln(w, line)
	}
}

// RenderEvent prints one announcement line.
func RenderEvent(w io.Writer, evt announce.Event) {
	fmt.Fprintf(w, "%s %s %s\n",
		dimColor.Sprint(evt.At.UTC().Format(time.RFC3339)),
		kindColor(evt.Kind).Sprintf("%-20s", evt.Kind),
		evt.Text)
}

func kindColor(k announce.Kind) *color.Color {
	switch k {
	case announce.KindOpen, announce.KindRestored:
		return upColor
	case announce.KindClose, announce.KindUnavailable, announce.KindLoopEnded:
		return downColor
	case announce.KindTopFresh, announce.KindTopChanged, announce.KindFinal:
		return topColor
	default:
		return enteredColor
	}
}

func rankText(r diff.Rank) string {
	if r == diff.Unranked {
		return "-"
	}
	return fmt.Sprint(int(r))
}
