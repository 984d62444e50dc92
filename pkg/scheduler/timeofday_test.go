package scheduler_test

import (
	"testing"
	"time"

	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := scheduler.ParseTimeOfDay("06:00")
	require.NoError(t, err)
	assert.Equal(t, 6, tod.Hour)
	assert.Equal(t, "06:00", tod.String())

	tod, err = scheduler.ParseTimeOfDay("22:30:15")
	require.NoError(t, err)
	assert.Equal(t, "22:30:15", tod.String())

	for _, bad := range []string{"", "6", "24:00", "12:60", "aa:bb", "1:2:3:4"} {
		_, err := scheduler.ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayNext(t *testing.T) {
	closing := scheduler.MustTimeOfDay("22:00")
	open := scheduler.MustTimeOfDay("06:00")

	now := time.Date(2024, 1, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 11, 22, 0, 0, 0, time.UTC), closing.Next(now))
	assert.Equal(t, time.Date(2024, 1, 11, 6, 0, 0, 0, time.UTC), open.Next(now))

	now = time.Date(2024, 1, 10, 5, 59, 59, 900_000_000, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC), open.Next(now))

	exact := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, exact, open.Next(exact), "a boundary equal to now has not passed")

	assert.Equal(t, time.Date(2024, 1, 11, 6, 0, 0, 0, time.UTC), open.Next(exact.Add(time.Millisecond)))
}

func TestTimeOfDayNextUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	open := scheduler.MustTimeOfDay("06:00")

	now := time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC).In(loc) // 05:00 local
	next := open.Next(now)
	assert.Equal(t, time.Date(2024, 1, 10, 4, 0, 0, 0, time.UTC), next.UTC())
}

func TestTimeOfDayText(t *testing.T) {
	var tod scheduler.TimeOfDay
	require.NoError(t, tod.UnmarshalText([]byte("07:15")))
	raw, err := tod.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "07:15", string(raw))
	assert.Error(t, tod.UnmarshalText([]byte("later")))
}
