// Package diff compares two ranked windows of the leaderboard.
package diff

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/canopy-network/ladder/pkg/leaderboard"
)

// Unranked stands for "beyond the tracked window". It compares greater than
// any real rank.
const Unranked = math.MaxInt

// Rank is a 1-based position; Unranked encodes as JSON null.
type Rank int

func (r Rank) MarshalJSON() ([]byte, error) {
	if r == Unranked {
		return []byte("null"), nil
	}
	return json.Marshal(int(r))
}

func (r *Rank) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Unranked
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Rank(n)
	return nil
}

// Record describes one id whose rank differs between two snapshots.
type Record struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Elo     int    `json:"elo"`
	OldRank Rank   `json:"oldRank"`
	NewRank Rank   `json:"newRank"`
}

// Diff compares the first window entries of prev and curr (all of them when
// window <= 0) and returns a record for every id whose rank changed. An id that
// left the window gets NewRank Unranked and Elo 0.
func Diff(prev, curr []leaderboard.Entry, window int) map[string]Record {
	prev = restrict(prev, window)
	curr = restrict(curr, window)
	out := make(map[string]Record)

	for i, old := range prev {
		oldRank := Rank(i + 1)
		newRank, elo := Rank(Unranked), 0
		if j := indexOf(curr, old.ID); j >= 0 {
			newRank, elo = Rank(j+1), curr[j].Elo
		}
		if oldRank != newRank {
			out[old.ID] = Record{ID: old.ID, Name: old.Name, Elo: elo, OldRank: oldRank, NewRank: newRank}
		}
	}

	for j, cur := range curr {
		newRank := Rank(j + 1)
		oldRank := Rank(Unranked)
		if i := indexOf(prev, cur.ID); i >= 0 {
			oldRank = Rank(i + 1)
		}
		if oldRank != newRank {
			out[cur.ID] = Record{ID: cur.ID, Name: cur.Name, Elo: cur.Elo, OldRank: oldRank, NewRank: newRank}
		}
	}
	return out
}

func restrict(entries []leaderboard.Entry, window int) []leaderboard.Entry {
	if window > 0 && window < len(entries) {
		return entries[:window]
	}
	return entries
}

// indexOf scans linearly; windows are a small multiple of the cutoff.
func indexOf(entries []leaderboard.Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

// CrossedCutoff reports whether r moved into or out of the top n.
func CrossedCutoff(r Record, n int) bool {
	return (int(r.OldRank) > n) != (int(r.NewRank) > n)
}

// Changed returns the records that stayed on the same side of the cutoff,
// sorted by new rank. Boundary crossers are left out; see Crossed.
func Changed(records map[string]Record, n int) []Record {
	return filter(records, func(r Record) bool { return !CrossedCutoff(r, n) })
}

// Crossed returns the promotions into and demotions out of the top n.
func Crossed(records map[string]Record, n int) []Record {
	return filter(records, func(r Record) bool { return CrossedCutoff(r, n) })
}

func filter(records map[string]Record, keep func(Record) bool) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// Sorted returns the records ordered by ascending new rank.
func Sorted(records map[string]Record) []Record {
	return filter(records, func(Record) bool { return true })
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].NewRank != rs[j].NewRank {
			return rs[i].NewRank < rs[j].NewRank
		}
		if rs[i].OldRank != rs[j].OldRank {
			return rs[i].OldRank < rs[j].OldRank
		}
		return rs[i].ID < rs[j].ID
	})
}
