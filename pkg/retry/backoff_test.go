package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWithBackoffSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), ShortConfig(), zaptest.NewLogger(t), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := WithBackoff(context.Background(), ShortConfig(), nil, "always", func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, ShortConfig().MaxRetries, calls)
}

func TestWithBackoffStopsOnPermanent(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := WithBackoff(context.Background(), ShortConfig(), nil, "permanent", func() error {
		calls++
		return Permanent(boom)
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithBackoff(ctx, ShortConfig(), nil, "cancelled", func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, calculateBackoff(cfg, 1))
	assert.Equal(t, 4*time.Second, calculateBackoff(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateBackoff(cfg, 10))
}
