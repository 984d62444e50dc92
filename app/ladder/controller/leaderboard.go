package controller

import (
	"net/http"
	"strconv"

	"github.com/canopy-network/ladder/pkg/diff"
	"go.uber.org/zap"
)

type diffResponse struct {
	Window  int           `json:"window"`
	Cutoff  int           `json:"cutoff"`
	Records []diff.Record `json:"records"`
	Changed []diff.Record `json:"changed"`
	Crossed []diff.Record `json:"crossed"`
}

// HandleLeaderboard returns the filtered ladder for ?prefix=, defaulting to
// the active prefix. A stale copy is served when the source is down.
func (c *Controller) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	prefix := c.App.Engine.Prefix()
	if values, ok := r.URL.Query()["prefix"]; ok && len(values) > 0 {
		prefix = values[0]
	}

	snap, err := c.App.Engine.Snapshot(r.Context(), prefix)
	if err != nil {
		c.App.Logger.Warn("Leaderboard unavailable", zap.String("prefix", prefix), zap.Error(err))
		if snap.Len() == 0 {
			writeError(w, http.StatusServiceUnavailable, "leaderboard unavailable")
			return
		}
		w.Header().Set("X-Ladder-Stale", "true")
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleDiff compares the last two polls over ?window= entries.
func (c *Controller) HandleDiff(w http.ResponseWriter, r *http.Request) {
	window := c.App.Engine.Window()
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "window must be a positive integer")
			return
		}
		window = n
	}

	cutoff := c.App.Engine.Cutoff()
	records := c.App.Engine.Diffs(window)
	writeJSON(w, http.StatusOK, diffResponse{
		Window:  window,
		Cutoff:  cutoff,
		Records: diff.Sorted(records),
		Changed: diff.Changed(records, cutoff),
		Crossed: diff.Crossed(records, cutoff),
	})
}
