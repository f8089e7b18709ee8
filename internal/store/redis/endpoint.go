package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/store"
)

// Store handles Redis operations for discovered endpoints
type Store struct {
	client *redis.Client
}

var _ store.EndpointStore = (*Store)(nil)

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks the connection, used by the infra endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Upsert stores an endpoint and indexes it under its scope
func (s *Store) Upsert(ctx context.Context, ep *domain.DiscoveredEndpoint) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint: %w", err)
	}

	scope := ep.Scope()
	id := ep.ID()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, EndpointKey(scope, id), data, 0)
		pipe.ZAdd(ctx, ScopeKey(scope), redis.Z{Score: float64(ep.Priority), Member: id})
		pipe.SAdd(ctx, AllScopesKey(), scope)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save endpoint: %w", err)
	}

	return nil
}

// get retrieves one endpoint; (nil, nil) when it does not exist
func (s *Store) get(ctx context.Context, scope, id string) (*domain.DiscoveredEndpoint, error) {
	data, err := s.client.Get(ctx, EndpointKey(scope, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	var ep domain.DiscoveredEndpoint
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal endpoint: %w", err)
	}

	return &ep, nil
}

// scopeEndpoints loads every endpoint of a scope in priority order
func (s *Store) scopeEndpoints(ctx context.Context, scope string) ([]*domain.DiscoveredEndpoint, error) {
	ids, err := s.client.ZRange(ctx, ScopeKey(scope), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint IDs: %w", err)
	}

	if len(ids) == 0 {
		return []*domain.DiscoveredEndpoint{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = EndpointKey(scope, id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoints: %w", err)
	}

	eps := make([]*domain.DiscoveredEndpoint, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without value, skip it
			continue
		}
		var ep domain.DiscoveredEndpoint
		if err := json.Unmarshal([]byte(raw), &ep); err != nil {
			continue
		}
		eps = append(eps, &ep)
	}

	return eps, nil
}

// Working retrieves the working endpoints of a (server, instance) pair
func (s *Store) Working(ctx context.Context, serverURL, instance string, limit int) ([]*domain.DiscoveredEndpoint, error) {
	all, err := s.scopeEndpoints(ctx, domain.EndpointScope(serverURL, instance))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.DiscoveredEndpoint, 0, len(all))
	for _, ep := range all {
		if ep.IsWorking {
			out = append(out, ep)
		}
	}

	store.SortEndpoints(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSuccess refreshes LastSuccessAt of an existing endpoint
func (s *Store) MarkSuccess(ctx context.Context, serverURL, instance, id string, at time.Time) error {
	scope := domain.EndpointScope(serverURL, instance)
	ep, err := s.get(ctx, scope, id)
	if err != nil {
		return err
	}
	if ep == nil {
		return fmt.Errorf("endpoint not found: %s", id)
	}

	ep.LastSuccessAt = at
	ep.UpdatedAt = at
	ep.IsWorking = true

	return s.Upsert(ctx, ep)
}

// All retrieves every endpoint of every scope
func (s *Store) All(ctx context.Context) ([]*domain.DiscoveredEndpoint, error) {
	scopes, err := s.client.SMembers(ctx, AllScopesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get scopes: %w", err)
	}

	out := make([]*domain.DiscoveredEndpoint, 0)
	for _, scope := range scopes {
		eps, err := s.scopeEndpoints(ctx, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, eps...)
	}

	return out, nil
}

// Delete removes an endpoint and drops its scope once empty
func (s *Store) Delete(ctx context.Context, ep *domain.DiscoveredEndpoint) error {
	scope := ep.Scope()
	id := ep.ID()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, EndpointKey(scope, id))
	pipe.ZRem(ctx, ScopeKey(scope), id)
	remaining := pipe.ZCard(ctx, ScopeKey(scope))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}

	if remaining.Val() == 0 {
		if err := s.client.SRem(ctx, AllScopesKey(), scope).Err(); err != nil {
			return fmt.Errorf("failed to remove scope from set: %w", err)
		}
	}

	return nil
}
