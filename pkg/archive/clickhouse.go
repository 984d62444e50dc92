package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/ladder/pkg/db/clickhouse"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/toplog"
	"go.uber.org/zap"
)

const (
	ChangesTable = "rank_changes"
	ReignsTable  = "reigns"
)

// ClickHouse writes history into two MergeTree tables.
type ClickHouse struct {
	client *clickhouse.Client
	logger *zap.Logger
}

// NewClickHouse creates the history tables when missing.
func NewClickHouse(ctx context.Context, client *clickhouse.Client, logger *zap.Logger) (*ClickHouse, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ClickHouse{client: client, logger: logger}
	for _, ddl := range a.schema() {
		if err := client.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create history table: %w", err)
		}
	}
	logger.Info("History tables ready", zap.String("database", client.Database))
	return a, nil
}

func (a *ClickHouse) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	prefix LowCardinality(String),
	captured_at DateTime64(3, 'UTC'),
	user_id String,
	name String,
	elo Int64,
	old_rank UInt32,
	new_rank UInt32,
	movement LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (prefix, captured_at, new_rank)`, a.client.Table(ChangesTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	prefix LowCardinality(String),
	observed_at DateTime64(3, 'UTC'),
	user_id String,
	username String,
	previous_user_id String,
	kind LowCardinality(String),
	win UInt32,
	lose UInt32,
	continuous_win UInt32,
	ticks UInt64,
	started_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (prefix, observed_at)`, a.client.Table(ReignsTable)),
	}
}

func (a *ClickHouse) RecordChanges(ctx context.Context, prefix string, at time.Time, records []diff.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := a.client.PrepareBatch(ctx, "INSERT INTO "+a.client.Table(ChangesTable))
	if err != nil {
		return fmt.Errorf("prepare rank change batch: %w", err)
	}
	for _, row := range ChangeRows(prefix, at, records) {
		row := row
		if err := batch.AppendStruct(&row); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append rank change: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send rank changes: %w", err)
	}
	return nil
}

func (a *ClickHouse) RecordReign(ctx context.Context, prefix string, at time.Time, evt toplog.Event) error {
	row, ok := ReignRowFor(prefix, at, evt)
	if !ok {
		return nil
	}
	batch, err := a.client.PrepareBatch(ctx, "INSERT INTO "+a.client.Table(ReignsTable))
	if err != nil {
		return fmt.Errorf("prepare reign batch: %w", err)
	}
	if err := batch.AppendStruct(&row); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("append reign: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send reign: %w", err)
	}
	return nil
}

// History returns the most recent reigns for prefix, newest first.
func (a *ClickHouse) History(ctx context.Context, prefix string, limit int) ([]ReignRow, error) {
	var rows []ReignRow
	query := fmt.Sprintf(`SELECT prefix, observed_at, user_id, username, previous_user_id, kind,
	win, lose, continuous_win, ticks, started_at
FROM %s WHERE prefix = ? ORDER BY observed_at DESC LIMIT ?`, a.client.Table(ReignsTable))
	if err := a.client.Select(ctx, &rows, query, prefix, limit); err != nil {
		return nil, fmt.Errorf("query reigns: %w", err)
	}
	return rows, nil
}

func (a *ClickHouse) Close() error {
	return a.client.Close()
}
