package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready   bool     `json:"ready"`
	Failing []string `json:"failing,omitempty"`
}

// Readyz is ready once every critical component answers its ping.
// Non-critical components only show up on /infra.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failing []string
		for _, c := range d.Components {
			if !c.Critical {
				continue
			}
			if st := checkComponent(r.Context(), c); !st.OK {
				failing = append(failing, c.Name)
			}
		}

		status := http.StatusOK
		if len(failing) > 0 {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{Ready: len(failing) == 0, Failing: failing})
	}
}
