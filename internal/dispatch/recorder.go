package dispatch

import (
	"context"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// roundPriority ranks newly recorded endpoints: the documented route
// first, then the quick routes, then whatever the matrix found.
var roundPriority = map[domain.Round]int{
	domain.RoundPrimary: 1,
	domain.RoundQuick:   2,
	domain.RoundMatrix:  3,
}

// recordDiscovery stores the winning route so the next dispatch tries it
// first. Errors are logged only.
func (s *Service) recordDiscovery(ctx context.Context, gw domain.GatewayConfig, result *domain.DispatchResult) {
	if !s.settings.RecordDiscoveries || s.endpoints == nil || !result.Success || result.Winner == nil {
		return
	}

	win := result.Winner
	now := s.now().UTC()
	server := gw.BaseURL()

	var err error
	if win.Round == domain.RoundDiscovered {
		err = s.endpoints.MarkSuccess(ctx, server, gw.Instance, win.EndpointID, now)
	} else {
		priority, ok := roundPriority[win.Round]
		if !ok {
			return
		}
		err = s.endpoints.Upsert(ctx, &domain.DiscoveredEndpoint{
			ServerURL:     server,
			Instance:      gw.Instance,
			Path:          win.Route,
			Method:        win.Method,
			Payload:       win.Payload,
			ContentType:   win.ContentType,
			Priority:      priority,
			IsWorking:     true,
			LastSuccessAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err != nil {
		s.logger.Warn("failed to record discovered endpoint",
			logger.String("request_id", result.RequestID),
			logger.String("route", win.Route),
			logger.Error(err))
		return
	}

	s.logger.Debug("discovered endpoint recorded",
		logger.String("request_id", result.RequestID),
		logger.String("round", string(win.Round)),
		logger.String("route", win.Route))
}
