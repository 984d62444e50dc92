package controller

import (
	"net/http"

	"github.com/canopy-network/ladder/app/ladder/types"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", c.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", c.HandleReady).Methods(http.MethodGet)

	r.HandleFunc("/ladder", c.HandleLadderState).Methods(http.MethodGet)
	r.HandleFunc("/ladder/deadline", c.HandleSetDeadline).Methods(http.MethodPut)
	r.HandleFunc("/ladder/start", c.HandleStart).Methods(http.MethodPost)
	r.HandleFunc("/ladder/stop", c.HandleStop).Methods(http.MethodPost)

	r.HandleFunc("/leaderboard", c.HandleLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard/diff", c.HandleDiff).Methods(http.MethodGet)
	r.HandleFunc("/toplog", c.HandleTopLog).Methods(http.MethodGet)
	r.HandleFunc("/toplog/history", c.HandleTopLogHistory).Methods(http.MethodGet)

	if c.App.Hub != nil {
		r.Handle("/ws", c.App.Hub).Methods(http.MethodGet)
	}

	return r, nil
}

// WithCORS allows browser dashboards on other origins to call the API.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodPut+", "+http.MethodOptions)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
