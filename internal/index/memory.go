package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/store"
)

// MemoryIndex keeps discovered endpoints in memory, grouped by
// (server, instance) scope. It is used when Redis is not configured.
// Endpoints are copied on the way in and out so callers never share state
// with the index.
type MemoryIndex struct {
	mu         sync.RWMutex
	scopes     map[string]map[string]*domain.DiscoveredEndpoint // scope -> ID -> endpoint
	lastChange time.Time
}

var _ store.EndpointStore = (*MemoryIndex)(nil)

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		scopes: make(map[string]map[string]*domain.DiscoveredEndpoint),
	}
}

// Working returns the working endpoints of a scope, best first.
func (idx *MemoryIndex) Working(_ context.Context, serverURL, instance string, limit int) ([]*domain.DiscoveredEndpoint, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byID := idx.scopes[domain.EndpointScope(serverURL, instance)]
	out := make([]*domain.DiscoveredEndpoint, 0, len(byID))
	for _, ep := range byID {
		if ep.IsWorking {
			cp := *ep
			out = append(out, &cp)
		}
	}

	store.SortEndpoints(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upsert adds or replaces a single endpoint
func (idx *MemoryIndex) Upsert(_ context.Context, ep *domain.DiscoveredEndpoint) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	scope := ep.Scope()
	byID, ok := idx.scopes[scope]
	if !ok {
		byID = make(map[string]*domain.DiscoveredEndpoint)
		idx.scopes[scope] = byID
	}

	cp := *ep
	byID[ep.ID()] = &cp
	idx.lastChange = time.Now()
	return nil
}

// MarkSuccess refreshes the last success time of an endpoint
func (idx *MemoryIndex) MarkSuccess(_ context.Context, serverURL, instance, id string, at time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ep, ok := idx.scopes[domain.EndpointScope(serverURL, instance)][id]
	if !ok {
		return fmt.Errorf("endpoint not found: %s", id)
	}

	ep.LastSuccessAt = at
	ep.UpdatedAt = at
	ep.IsWorking = true
	idx.lastChange = time.Now()
	return nil
}

// All returns every endpoint of every scope
func (idx *MemoryIndex) All(_ context.Context) ([]*domain.DiscoveredEndpoint, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*domain.DiscoveredEndpoint, 0, idx.countLocked())
	for _, byID := range idx.scopes {
		for _, ep := range byID {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Delete removes an endpoint from the index
func (idx *MemoryIndex) Delete(_ context.Context, ep *domain.DiscoveredEndpoint) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	scope := ep.Scope()
	byID, ok := idx.scopes[scope]
	if !ok {
		return nil
	}

	delete(byID, ep.ID())
	if len(byID) == 0 {
		delete(idx.scopes, scope)
	}
	idx.lastChange = time.Now()
	return nil
}

// Count returns the number of endpoints in the index
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.countLocked()
}

// GetLastChange returns the timestamp of the last write
func (idx *MemoryIndex) GetLastChange() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastChange
}

func (idx *MemoryIndex) countLocked() int {
	n := 0
	for _, byID := range idx.scopes {
		n += len(byID)
	}
	return n
}
