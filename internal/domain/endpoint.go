package domain

import (
	"net/url"
	"strings"
	"time"
)

// InstancePlaceholder is substituted with the path-escaped instance name
// when a route template is turned into a URL.
const InstancePlaceholder = "{instance}"

// GatewayConfig identifies the messaging gateway a dispatch goes through.
// It is resolved once per request and never mutated afterwards.
type GatewayConfig struct {
	ServerURL string
	Instance  string
	APIKey    string
}

// BaseURL returns ServerURL without its trailing slash.
func (g GatewayConfig) BaseURL() string {
	return strings.TrimRight(g.ServerURL, "/")
}

// DiscoveredEndpoint is a route that previously delivered a message through
// a given (server, instance) pair.
//
// It is a success cache only: a dispatch never requires one to exist.
type DiscoveredEndpoint struct {
	// ─────────────────────────────
	// Scope
	// ─────────────────────────────

	// ServerURL is the gateway base URL the endpoint was confirmed on.
	ServerURL string `json:"server_url"`

	// Instance is the gateway session name.
	Instance string `json:"instance_name"`

	// ─────────────────────────────
	// Route
	// ─────────────────────────────

	// Path is relative to ServerURL and may contain InstancePlaceholder.
	// Example: /api/{instance}/send-message
	Path string `json:"path"`

	// Method is the HTTP method (POST in practice).
	Method string `json:"method"`

	// Priority orders candidates, lowest first.
	Priority int `json:"priority"`

	// Payload and ContentType are the encoding that delivered through this
	// route. Both are empty for endpoints recorded without them.
	Payload     PayloadShape `json:"payload,omitempty"`
	ContentType string       `json:"content_type,omitempty"`

	// ─────────────────────────────
	// Liveness
	// ─────────────────────────────

	// IsWorking is false once an endpoint is known to be broken.
	IsWorking bool `json:"is_working"`

	// LastSuccessAt is refreshed whenever a delivery goes through this endpoint.
	LastSuccessAt time.Time `json:"last_success_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ID identifies the endpoint inside its (server, instance) scope.
func (e *DiscoveredEndpoint) ID() string {
	return strings.ToUpper(e.Method) + " " + e.Path
}

// Scope returns the (server, instance) key endpoints are grouped under.
func (e *DiscoveredEndpoint) Scope() string {
	return EndpointScope(e.ServerURL, e.Instance)
}

// EndpointScope builds the scope key for a (server, instance) pair.
func EndpointScope(serverURL, instance string) string {
	return strings.TrimRight(serverURL, "/") + "|" + instance
}

// ExpandRoute substitutes the instance placeholder with its path-escaped value.
func ExpandRoute(route, instance string) string {
	return strings.ReplaceAll(route, InstancePlaceholder, url.PathEscape(instance))
}

// ConfigRecord is an active dispatch configuration as stored by the
// configuration source. Only enabled records are ever returned.
type ConfigRecord struct {
	APIType   string
	ServerURL string
	Instance  string
	UpdatedAt time.Time
}
