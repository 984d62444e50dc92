package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/canopy-network/ladder/pkg/archive"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/toplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

func TestChangeRows(t *testing.T) {
	records := []diff.Record{
		{ID: "b", Name: "B", Elo: 1600, OldRank: 2, NewRank: 1},
		{ID: "c", Name: "C", Elo: 0, OldRank: 3, NewRank: diff.Unranked},
		{ID: "d", Name: "D", Elo: 1400, OldRank: diff.Unranked, NewRank: 3},
	}

	rows := archive.ChangeRows("s1", at, records)
	require.Len(t, rows, 3)

	assert.Equal(t, archive.ChangeRow{
		Prefix: "s1", CapturedAt: at.UTC(), UserID: "b", Name: "B", Elo: 1600,
		OldRank: 2, NewRank: 1, Movement: string(diff.Up),
	}, rows[0])
	assert.Equal(t, uint32(0), rows[1].NewRank)
	assert.Equal(t, string(diff.Exited), rows[1].Movement)
	assert.Equal(t, uint32(0), rows[2].OldRank)
	assert.Equal(t, string(diff.Entered), rows[2].Movement)
	assert.Equal(t, time.UTC, rows[0].CapturedAt.Location())
}

func TestReignRowFor(t *testing.T) {
	top := toplog.Entry{
		UserID:        "alice",
		Username:      "Alice",
		CurrentStat:   toplog.Stat{Win: 7, Lose: 2},
		ContinuousWin: 3,
		StartTime:     at.Add(-time.Hour).UnixMilli(),
		Ticks:         42,
	}

	row, ok := archive.ReignRowFor("s1", at, toplog.Event{Kind: toplog.EventChanged, Top: top, PreviousUserID: "bob"})
	require.True(t, ok)
	assert.Equal(t, "alice", row.UserID)
	assert.Equal(t, "bob", row.PreviousUserID)
	assert.Equal(t, "changed", row.Kind)
	assert.Equal(t, uint32(7), row.Win)
	assert.Equal(t, uint32(3), row.ContinuousWin)
	assert.Equal(t, uint64(42), row.Ticks)
	assert.True(t, row.StartedAt.Equal(at.Add(-time.Hour)))

	_, ok = archive.ReignRowFor("s1", at, toplog.Event{Kind: toplog.EventRetained, Top: top})
	assert.False(t, ok)
}

func TestNopRecorder(t *testing.T) {
	var rec archive.Recorder = archive.Nop{}
	assert.NoError(t, rec.RecordChanges(context.Background(), "s1", at, nil))
	assert.NoError(t, rec.RecordReign(context.Background(), "s1", at, toplog.Event{}))
	assert.NoError(t, rec.Close())
}

type memoryRecorder struct {
	changes [][]diff.Record
	reigns  []toplog.Event
	closed  bool
}

func (m *memoryRecorder) RecordChanges(_ context.Context, _ string, _ time.Time, records []diff.Record) error {
	m.changes = append(m.changes, records)
	return nil
}

func (m *memoryRecorder) RecordReign(_ context.Context, _ string, _ time.Time, evt toplog.Event) error {
	m.reigns = append(m.reigns, evt)
	return nil
}

func (m *memoryRecorder) Close() error {
	m.closed = true
	return nil
}

func TestAsyncDeliversInOrderAndDrainsOnClose(t *testing.T) {
	inner := &memoryRecorder{}
	async := archive.NewAsync(inner, nil, 16, time.Second)
	ctx := context.Background()

	records := []diff.Record{{ID: "a", OldRank: 1, NewRank: 2}}
	require.NoError(t, async.RecordChanges(ctx, "s1", at, records))
	require.NoError(t, async.RecordChanges(ctx, "s1", at, nil))
	records[0].ID = "mutated"
	require.NoError(t, async.RecordChanges(ctx, "s1", at, []diff.Record{{ID: "b", OldRank: 2, NewRank: 1}}))
	require.NoError(t, async.RecordReign(ctx, "s1", at, toplog.Event{Kind: toplog.EventRetained}))
	require.NoError(t, async.RecordReign(ctx, "s1", at, toplog.Event{Kind: toplog.EventFresh, Top: toplog.Entry{UserID: "a"}}))

	require.NoError(t, async.Close())

	require.Len(t, inner.changes, 2)
	assert.Equal(t, "a", inner.changes[0][0].ID)
	assert.Equal(t, "b", inner.changes[1][0].ID)
	require.Len(t, inner.reigns, 1)
	assert.Equal(t, "a", inner.reigns[0].Top.UserID)
	assert.True(t, inner.closed)
}
