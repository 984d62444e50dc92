package ladderctl

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/canopy-network/ladder/pkg/announce"
	"github.com/canopy-network/ladder/pkg/diff"
	"github.com/canopy-network/ladder/pkg/leaderboard"
	"github.com/canopy-network/ladder/pkg/redis"
	"github.com/canopy-network/ladder/pkg/toplog"
	"github.com/canopy-network/ladder/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loadSnapshot(ctx context.Context, location, delimiter, prefix string) (leaderboard.Snapshot, error) {
	src, err := leaderboard.NewSource(location, leaderboard.ParseDelimiter(delimiter), zap.NewNop())
	if err != nil {
		return leaderboard.Snapshot{}, err
	}
	return leaderboard.Load(ctx, src, prefix, time.Now())
}

func SnapshotCmd() *cobra.Command {
	var source, delimiter, prefix string
	var cutoff int

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the filtered ladder of a ranking table",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd.Context(), source, delimiter, prefix)
			if err != nil {
				return err
			}
			RenderSnapshot(cmd.OutOrStdout(), snap, cutoff)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", utils.Env("LADDER_SOURCE", "leaderboard.csv"), "ranking table path or http(s) URL")
	cmd.Flags().StringVar(&delimiter, "delimiter", utils.Env("LADDER_SOURCE_DELIMITER", ","), "field delimiter (comma, tab, pipe, semicolon)")
	cmd.Flags().StringVar(&prefix, "prefix", utils.Env("LADDER_PREFIX", ""), "season prefix filter")
	cmd.Flags().IntVar(&cutoff, "cutoff", utils.EnvInt("LADDER_CUTOFF", 10), "draw the cutoff line after this rank")
	return cmd
}

func DiffCmd() *cobra.Command {
	var delimiter, prefix string
	var cutoff, window int

	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "Compare two ranking tables",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := loadSnapshot(cmd.Context(), args[0], delimiter, prefix)
			if err != nil {
				return fmt.Errorf("previous table: %w", err)
			}
			curr, err := loadSnapshot(cmd.Context(), args[1], delimiter, prefix)
			if err != nil {
				return fmt.Errorf("current table: %w", err)
			}
			if window <= 0 {
				window = cutoff * 2
			}
			RenderDiff(cmd.OutOrStdout(), diff.Diff(prev.Entries, curr.Entries, window), cutoff)
			return nil
		},
	}

	cmd.Flags().StringVar(&delimiter, "delimiter", utils.Env("LADDER_SOURCE_DELIMITER", ","), "field delimiter")
	cmd.Flags().StringVar(&prefix, "prefix", utils.Env("LADDER_PREFIX", ""), "season prefix filter")
	cmd.Flags().IntVar(&cutoff, "cutoff", utils.EnvInt("LADDER_CUTOFF", 10), "cutoff rank")
	cmd.Flags().IntVar(&window, "window", 0, "entries compared (default twice the cutoff)")
	return cmd
}

func TopLogCmd() *cobra.Command {
	var path, key string

	cmd := &cobra.Command{
		Use:   "toplog",
		Short: "Print the persisted top-log",
		Long:  "Print the top-log from a JSON file, or from Redis when --redis-key is set (REDIS_* variables configure the connection).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var store toplog.Store = toplog.NewFileStore(path)
			if key != "" {
				client, err := redis.NewClient(ctx, zap.NewNop())
				if err != nil {
					return err
				}
				defer client.Close()
				store = toplog.NewRedisStore(client.GetClient(), key)
			}

			log, err := store.Load(ctx)
			if err != nil {
				return err
			}
			RenderTopLog(cmd.OutOrStdout(), log)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", utils.Env("LADDER_TOPLOG_PATH", "toplog.json"), "top-log JSON file")
	cmd.Flags().StringVar(&key, "redis-key", "", "read the top-log from this Redis key instead")
	return cmd
}

func TailCmd() *cobra.Command {
	var stream string
	var fromStart bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow announcements from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := redis.NewClient(ctx, zap.NewNop())
			if err != nil {
				return err
			}
			defer client.Close()

			lastID := "$"
			if fromStart {
				lastID = "0"
			}
			consumer, err := redis.NewStreamConsumer(client, redis.StreamConsumerConfig{Stream: stream, LastID: lastID})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = consumer.Run(ctx, func(_ context.Context, msg redis.Message) error {
				evt, err := announce.DecodeStreamValues(msg.Values)
				if err != nil {
					return err
				}
				RenderEvent(out, evt)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&stream, "stream", utils.Env("LADDER_REDIS_STREAM", "ladder:events"), "announcement stream")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the retained history first")
	return cmd
}
