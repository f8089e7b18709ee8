package prober

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// probeServer hits the gateway root without credentials and returns its
// status, or nil when the server could not be reached at all.
func (p *Prober) probeServer(ctx context.Context, baseURL string) *int {
	res, err := p.timedFetch(ctx, fetchRequest{
		method: http.MethodGet,
		url:    baseURL + "/",
	}, p.timeouts.Status)
	if err != nil && res.status == 0 {
		p.logger.Debug("gateway health probe failed",
			logger.String("url", baseURL+"/"),
			logger.Error(err),
		)
		return nil
	}
	status := res.status
	return &status
}

// connectionState is the connection-state reply. Most versions nest the
// state under "instance"; some put it at the top level.
type connectionState struct {
	Instance *struct {
		State string `json:"state"`
	} `json:"instance"`
	State string `json:"state"`
}

// probeInstance asks the gateway whether the instance is connected.
// Any failure yields ("unknown", false).
func (p *Prober) probeInstance(ctx context.Context, baseURL, instance, apiKey string) (string, bool) {
	target := baseURL + "/instance/connectionState/" + url.PathEscape(instance)
	res, err := p.timedFetch(ctx, fetchRequest{
		method: http.MethodGet,
		url:    target,
		apiKey: apiKey,
	}, p.timeouts.Status)
	if err != nil {
		p.logger.Debug("instance state probe failed",
			logger.String("url", target),
			logger.Error(err),
		)
		return domain.InstanceStateUnknown, false
	}

	state := parseInstanceState(res.body)
	return state, state == domain.InstanceStateOpen
}

func parseInstanceState(body []byte) string {
	var cs connectionState
	if err := json.Unmarshal(body, &cs); err != nil {
		return domain.InstanceStateUnknown
	}

	state := cs.State
	if cs.Instance != nil && cs.Instance.State != "" {
		state = cs.Instance.State
	}

	state = strings.TrimSpace(state)
	if state == "" {
		return domain.InstanceStateUnknown
	}
	return state
}
