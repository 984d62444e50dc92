package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrSourceUnavailable is returned when the ranking table cannot be read.
// Callers get an empty snapshot alongside it and keep running.
var ErrSourceUnavailable = errors.New("ranking source unavailable")

const (
	colScore = iota
	colName
	colWin
	colLose
	minColumns
)

// Build turns raw rows of (score, name, win, lose) into a snapshot filtered
// by prefix. Rows are taken in the given order and never re-sorted. Short or
// unparsable rows are dropped.
func Build(rows [][]string, prefix string, at time.Time) Snapshot {
	snap := Empty(prefix, at)
	snap.Lookup = make(map[string]Entry, len(rows))

	for _, row := range rows {
		entry, ok := parseRow(row)
		if !ok {
			continue
		}
		if strings.HasPrefix(entry.ID, snap.Prefix) {
			entry.Rank = len(snap.Entries) + 1
			snap.Entries = append(snap.Entries, entry)
		}
		snap.Lookup[entry.ID] = entry
	}
	return snap
}

func parseRow(row []string) (Entry, bool) {
	if len(row) < minColumns {
		return Entry{}, false
	}
	name := strings.TrimSpace(row[colName])
	id := NormalizeID(name)
	if id == "" {
		return Entry{}, false
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(row[colScore]), 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return Entry{}, false
	}
	win, err := strconv.Atoi(strings.TrimSpace(row[colWin]))
	if err != nil {
		return Entry{}, false
	}
	lose, err := strconv.Atoi(strings.TrimSpace(row[colLose]))
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		ID:   id,
		Name: name,
		Elo:  int(math.Round(score)),
		Win:  win,
		Lose: lose,
	}, true
}

// Load reads src and builds a snapshot. When the source fails the returned
// snapshot is empty and the error wraps ErrSourceUnavailable.
func Load(ctx context.Context, src Source, prefix string, at time.Time) (Snapshot, error) {
	if src == nil {
		return Empty(prefix, at), fmt.Errorf("%w: no source configured", ErrSourceUnavailable)
	}
	rows, err := src.Rows(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return Empty(prefix, at), err
		}
		return Empty(prefix, at), fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src.Name(), err)
	}
	return Build(rows, prefix, at), nil
}
