package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
)

const readyTimeout = 2 * time.Second

type componentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz reports ready when the reactor answers and, if configured, the
// journal's Redis answers a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		resp := readyzResponse{Ready: true, Components: map[string]componentStatus{}}

		reactor := componentStatus{OK: true}
		if err := d.Loop.Call(ctx, func() {}); err != nil {
			reactor = componentStatus{OK: false, Error: err.Error()}
		}
		resp.Components["reactor"] = reactor

		if d.Journal != nil {
			journal := componentStatus{OK: true}
			if err := d.Journal.Ping(ctx); err != nil {
				journal = componentStatus{OK: false, Error: err.Error()}
			}
			resp.Components["journal"] = journal
		}

		status := http.StatusOK
		for name, c := range resp.Components {
			if !c.OK {
				resp.Ready = false
				status = http.StatusServiceUnavailable
				d.Logger.Warn("readiness check failed",
					logger.String("component", name),
					logger.String("error", c.Error))
			}
		}
		writeJSON(w, status, resp)
	}
}
