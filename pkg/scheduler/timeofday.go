package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var dailyParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TimeOfDay is a daily boundary such as "06:00" or "22:30:15".
type TimeOfDay struct {
	Hour, Minute, Second int
	schedule             cron.Schedule
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS in 24h notation.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM or HH:MM:SS", s)
	}
	vals := [3]int{}
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return TimeOfDay{}, fmt.Errorf("time of day %q: bad field %q", s, p)
		}
		vals[i] = n
	}
	return NewTimeOfDay(vals[0], vals[1], vals[2])
}

func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	spec := fmt.Sprintf("%d %d %d * * *", second, minute, hour)
	sched, err := dailyParser.Parse(spec)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %02d:%02d:%02d: %w", hour, minute, second, err)
	}
	return TimeOfDay{Hour: hour, Minute: minute, Second: second, schedule: sched}, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Equal(o TimeOfDay) bool {
	return t.Hour == o.Hour && t.Minute == o.Minute && t.Second == o.Second
}

// Next returns today's occurrence in now's location, or tomorrow's when
// today's has already passed. An occurrence equal to now counts as today.
func (t TimeOfDay) Next(now time.Time) time.Time {
	if t.schedule == nil {
		t = MustTimeOfDay(t.String())
	}
	// cron starts searching at the next whole second; step back so an exact
	// boundary still matches.
	return t.schedule.Next(now.Add(-time.Nanosecond))
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
