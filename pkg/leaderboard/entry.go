package leaderboard

import (
	"strings"
	"time"
	"unicode"
)

// Entry is one row of the ranking table. Rank is 1-based within the filtered
// ladder and 0 for rows outside the active prefix.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Elo  int    `json:"elo"`
	Win  int    `json:"win"`
	Lose int    `json:"lose"`
	Rank int    `json:"rank,omitempty"`
}

// Ranked reports whether the entry belongs to the filtered ladder.
func (e Entry) Ranked() bool { return e.Rank > 0 }

// Snapshot is one capture of the ranking table. Entries holds the rows whose
// id matches Prefix, in table order; Lookup holds every row.
type Snapshot struct {
	Prefix     string           `json:"prefix"`
	CapturedAt time.Time        `json:"capturedAt"`
	Entries    []Entry          `json:"entries"`
	Lookup     map[string]Entry `json:"-"`
}

// Empty returns a snapshot with no rows for prefix.
func Empty(prefix string, at time.Time) Snapshot {
	return Snapshot{
		Prefix:     NormalizeID(prefix),
		CapturedAt: at,
		Entries:    []Entry{},
		Lookup:     map[string]Entry{},
	}
}

func (s Snapshot) Len() int { return len(s.Entries) }

// Top returns the rank-1 entry.
func (s Snapshot) Top() (Entry, bool) {
	if len(s.Entries) == 0 {
		return Entry{}, false
	}
	return s.Entries[0], true
}

// Window returns the first n ranked entries; n <= 0 returns all of them.
func (s Snapshot) Window(n int) []Entry {
	if n <= 0 || n >= len(s.Entries) {
		return s.Entries
	}
	return s.Entries[:n]
}

// Get looks an id up across all rows, filtered or not.
func (s Snapshot) Get(id string) (Entry, bool) {
	e, ok := s.Lookup[NormalizeID(id)]
	return e, ok
}

// NormalizeID lowercases name and drops everything that is not a letter or a digit.
func NormalizeID(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
