// Package prober delivers a text message through a messaging gateway whose
// exact route and payload schema are not known in advance.
//
// A dispatch runs two pre-flight probes (server health, instance state) and
// then walks an ordered cascade of candidates: previously discovered
// endpoints, a few quick well-known routes, the documented primary route and
// finally an exhaustive prefix × route × encoding matrix. Attempts are strictly
// sequential and the first accepted one ends the cascade.
package prober

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

const (
	// DefaultDiscoveredLimit caps how many discovered endpoints are replayed.
	DefaultDiscoveredLimit = 3
	// DefaultBodyLimit caps how many bytes of a gateway response are retained.
	DefaultBodyLimit = 64 * 1024
)

// HTTPClient abstracts the http.Client Do method so tests can inject a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// EndpointSource lists working discovered endpoints for a (server, instance)
// pair, ordered by priority ascending.
type EndpointSource interface {
	Working(ctx context.Context, serverURL, instance string, limit int) ([]*domain.DiscoveredEndpoint, error)
}

// Timeouts holds the per-phase request timeouts and the overall dispatch budget.
type Timeouts struct {
	Status     time.Duration // health and connection-state probes
	Discovered time.Duration
	Quick      time.Duration
	Primary    time.Duration
	Matrix     time.Duration
	Overall    time.Duration // 0 disables the overall deadline
}

// DefaultTimeouts returns the stock timeout family.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Status:     10 * time.Second,
		Discovered: 15 * time.Second,
		Quick:      15 * time.Second,
		Primary:    60 * time.Second,
		Matrix:     30 * time.Second,
		Overall:    5 * time.Minute,
	}
}

// Option customises a Prober.
type Option func(*Prober)

// WithHTTPClient overrides the client used to talk to the gateway.
func WithHTTPClient(client HTTPClient) Option {
	return func(p *Prober) {
		if client != nil {
			p.client = client
		}
	}
}

// WithTimeouts overrides the timeout family.
func WithTimeouts(t Timeouts) Option {
	return func(p *Prober) { p.timeouts = t }
}

// WithDiscoveredLimit sets how many discovered endpoints are replayed.
func WithDiscoveredLimit(limit int) Option {
	return func(p *Prober) {
		if limit > 0 {
			p.discoveredLimit = limit
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from each response body.
func WithBodyLimit(limit int64) Option {
	return func(p *Prober) {
		if limit > 0 {
			p.maxBodyBytes = limit
		}
	}
}

// WithClock overrides the clock used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) {
		if now != nil {
			p.now = now
		}
	}
}

// Prober runs delivery cascades. It holds no per-request state and is safe
// for concurrent use.
type Prober struct {
	client          HTTPClient
	endpoints       EndpointSource
	logger          logger.Logger
	timeouts        Timeouts
	discoveredLimit int
	maxBodyBytes    int64
	now             func() time.Time
}

// New builds a Prober. endpoints may be nil, in which case the discovered
// phase is always empty.
func New(endpoints EndpointSource, log logger.Logger, opts ...Option) *Prober {
	p := &Prober{
		client:          newHTTPClient(),
		endpoints:       endpoints,
		logger:          log,
		timeouts:        DefaultTimeouts(),
		discoveredLimit: DefaultDiscoveredLimit,
		maxBodyBytes:    DefaultBodyLimit,
		now:             time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// newHTTPClient returns a client without a global timeout: every request
// carries its own deadline through its context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// A redirected POST turns into a GET; report the redirect instead.
			return http.ErrUseLastResponse
		},
	}
}
