package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
)

const componentPingTimeout = 2 * time.Second

type componentStatus struct {
	OK       bool   `json:"ok"`
	Backend  string `json:"backend,omitempty"`
	Critical bool   `json:"critical"`
	Impact   string `json:"impact,omitempty"`
	Error    string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode          string                     `json:"mode"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Components    map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	now := d.TimeNow
	if now == nil {
		now = time.Now
	}

	return func(w http.ResponseWriter, r *http.Request) {
		components := make(map[string]componentStatus, len(d.Components))
		for _, c := range d.Components {
			components[c.Name] = checkComponent(r.Context(), c)
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:          determineMode(components),
			UptimeSeconds: now().Sub(d.StartTime).Seconds(),
			Components:    components,
		})
	}
}

// determineMode is "critical" when a critical component is down,
// "degraded" when any other one is, "operational" otherwise.
func determineMode(components map[string]componentStatus) string {
	mode := "operational"
	for _, c := range components {
		if c.OK {
			continue
		}
		if c.Critical {
			return "critical"
		}
		mode = "degraded"
	}
	return mode
}

func checkComponent(parent context.Context, c deps.Component) componentStatus {
	status := componentStatus{
		OK:       true,
		Backend:  c.Backend,
		Critical: c.Critical,
	}
	if c.Ping == nil {
		return status
	}

	ctx, cancel := context.WithTimeout(parent, componentPingTimeout)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		status.OK = false
		status.Impact = c.Impact
		status.Error = err.Error()
	}
	return status
}
