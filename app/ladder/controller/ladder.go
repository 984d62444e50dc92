package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/canopy-network/ladder/pkg/scheduler"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

// commandTimeout bounds how long a request waits for the scheduler goroutine.
const commandTimeout = 5 * time.Second

type deadlineRequest struct {
	Deadline string `json:"deadline"`
}

func (c *Controller) HandleLadderState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.App.Engine.State())
}

// HandleSetDeadline arms the competition deadline. An invalid body leaves the
// previous deadline in place.
func (c *Controller) HandleSetDeadline(w http.ResponseWriter, r *http.Request) {
	var req deadlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	when, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deadline must be an RFC3339 timestamp")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := c.App.Engine.SetDeadline(ctx, when); err != nil {
		if errors.Is(err, scheduler.ErrInvalidDeadline) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c.App.Logger.Error("Failed to set deadline", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	c.App.Logger.Info("Ladder deadline armed", zap.Time("deadline", when))
	writeJSON(w, http.StatusOK, c.App.Engine.State())
}

func (c *Controller) HandleStart(w http.ResponseWriter, r *http.Request) {
	c.runCommand(w, r, c.App.Engine.Start)
}

func (c *Controller) HandleStop(w http.ResponseWriter, r *http.Request) {
	c.runCommand(w, r, c.App.Engine.Stop)
}

func (c *Controller) runCommand(w http.ResponseWriter, r *http.Request, cmd func(context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := cmd(ctx); err != nil {
		c.App.Logger.Error("Scheduler command failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	writeJSON(w, http.StatusOK, c.App.Engine.State())
}
