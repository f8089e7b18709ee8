// Package store defines the discovered-endpoint store contract shared by
// the Redis store and the in-memory index.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

// EndpointStore persists discovered endpoints.
type EndpointStore interface {
	// Working returns working endpoints for (serverURL, instance) ordered by
	// priority ascending, then path. limit <= 0 means no limit.
	Working(ctx context.Context, serverURL, instance string, limit int) ([]*domain.DiscoveredEndpoint, error)
	// Upsert inserts or replaces an endpoint keyed by its scope and ID.
	Upsert(ctx context.Context, ep *domain.DiscoveredEndpoint) error
	// MarkSuccess refreshes LastSuccessAt of an existing endpoint.
	MarkSuccess(ctx context.Context, serverURL, instance, id string, at time.Time) error
	// All returns every endpoint across all scopes.
	All(ctx context.Context) ([]*domain.DiscoveredEndpoint, error)
	// Delete removes one endpoint.
	Delete(ctx context.Context, ep *domain.DiscoveredEndpoint) error
}

// SortEndpoints orders endpoints by priority ascending, ties broken by path.
func SortEndpoints(eps []*domain.DiscoveredEndpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Priority != eps[j].Priority {
			return eps[i].Priority < eps[j].Priority
		}
		return eps[i].Path < eps[j].Path
	})
}

// LastActivity is the most recent of LastSuccessAt and UpdatedAt.
func LastActivity(ep *domain.DiscoveredEndpoint) time.Time {
	if ep.LastSuccessAt.After(ep.UpdatedAt) {
		return ep.LastSuccessAt
	}
	return ep.UpdatedAt
}
