package redis

import (
	"fmt"
	"strings"
)

const (
	// KeyPrefixEndpoint is the prefix for discovered endpoint values
	KeyPrefixEndpoint = "dispatchprobe:endpoint:"
	// KeyPrefixScope is the prefix for the per-scope sorted sets (member: endpoint ID, score: priority)
	KeyPrefixScope = "dispatchprobe:endpoints:"
	// KeyAllScopes is the key for the set of all known scopes
	KeyAllScopes = "dispatchprobe:scopes:all"
)

// scopeSep separates a scope from an endpoint ID inside a value key.
// Scopes already use "|" between server URL and instance.
const scopeSep = "#"

// EndpointKey returns the Redis key holding one endpoint
func EndpointKey(scope, id string) string {
	return KeyPrefixEndpoint + scope + scopeSep + id
}

// ScopeKey returns the sorted set listing the endpoint IDs of a scope
func ScopeKey(scope string) string {
	return KeyPrefixScope + scope
}

// AllScopesKey returns the key for the set of all scopes
func AllScopesKey() string {
	return KeyAllScopes
}

// SplitEndpointKey extracts scope and endpoint ID from an endpoint key
func SplitEndpointKey(key string) (scope, id string, err error) {
	if !strings.HasPrefix(key, KeyPrefixEndpoint) {
		return "", "", fmt.Errorf("invalid endpoint key: %s", key)
	}
	scope, id, ok := strings.Cut(key[len(KeyPrefixEndpoint):], scopeSep)
	if !ok || scope == "" || id == "" {
		return "", "", fmt.Errorf("invalid endpoint key: %s", key)
	}
	return scope, id, nil
}
