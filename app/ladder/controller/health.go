package controller

import (
	"net/http"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  string(c.App.Engine.State().Phase),
	})
}

// HandleReady fails while an enabled backend cannot be reached.
func (c *Controller) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "errored", "error": "redis connection error"})
			return
		}
	}

	if c.App.ClickHouseClient != nil {
		if err := c.App.ClickHouseClient.Db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "errored", "error": "clickhouse connection error"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
