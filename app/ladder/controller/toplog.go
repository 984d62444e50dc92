package controller

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

func (c *Controller) HandleTopLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.App.Engine.TopLog(r.Context()))
}

// HandleTopLogHistory lists archived reigns for ?prefix=, newest first.
func (c *Controller) HandleTopLogHistory(w http.ResponseWriter, r *http.Request) {
	if c.App.History == nil {
		writeError(w, http.StatusNotFound, "history archive is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	prefix := c.App.Engine.Prefix()
	if raw := r.URL.Query().Get("prefix"); raw != "" {
		prefix = raw
	}

	rows, err := c.App.History.History(r.Context(), prefix, limit)
	if err != nil {
		c.App.Logger.Error("Failed to read reign history", zap.String("prefix", prefix), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
