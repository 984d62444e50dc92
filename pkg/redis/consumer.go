package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream is the Redis stream name to consume from (required).
	Stream string

	// LastID is the starting position: "0" for the beginning, "$" for new
	// entries only, or a concrete entry ID. Default: "$".
	LastID string

	// Count is the max number of entries to read per batch. Default: 100.
	Count int64

	// Block is how long to wait for new entries. Default: 5 seconds.
	Block time.Duration

	// RetryInterval is the initial wait after a read error, doubled up to
	// MaxRetryInterval. Defaults: 1s and 30s.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// MessageHandler processes a stream message.
type MessageHandler func(ctx context.Context, msg Message) error

// Message represents a single stream entry.
type Message struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// StreamConsumer tails a Redis stream and reconnects on errors.
type StreamConsumer struct {
	client *Client
	config StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer creates a new stream consumer.
func NewStreamConsumer(client *Client, config StreamConsumerConfig) (*StreamConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}

	if config.LastID == "" {
		config.LastID = "$"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 1 * time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamConsumer{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Run calls handler for each entry until ctx is cancelled. Handler errors are
// logged and the entry is skipped.
func (sc *StreamConsumer) Run(ctx context.Context, handler MessageHandler) error {
	lastID := sc.config.LastID
	retryInterval := sc.config.RetryInterval

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := sc.client.XRead(ctx, sc.config.Stream, lastID, sc.config.Count, sc.config.Block)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				continue
			}

			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))

			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		retryInterval = sc.config.RetryInterval

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				lastID = xmsg.ID
				msg := Message{ID: xmsg.ID, Stream: stream.Stream, Values: xmsg.Values}
				if err := handler(ctx, msg); err != nil {
					sc.logger.Error("Error processing message",
						zap.String("stream", sc.config.Stream),
						zap.String("id", msg.ID),
						zap.Error(err))
				}
			}
		}
	}
}
