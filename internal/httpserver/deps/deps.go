package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/dispatch"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/mw"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// Dispatcher handles one send request. *dispatch.Service implements it.
type Dispatcher interface {
	Send(ctx context.Context, raw map[string]any) dispatch.Response
}

// Component is a collaborator reported on /infra.
type Component struct {
	Name     string                          // ex: "endpoint_store"
	Backend  string                          // ex: "redis", "memory", "mysql:dispatch_configs"
	Critical bool                            // false => its failure only degrades the service
	Impact   string                          // what is lost when it is down
	Ping     func(ctx context.Context) error // nil => always healthy
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time   // for testing, defaults to time.Now
	AllowedHosts []string           // Host headers allowed to access admin endpoints
	AllowedCIDRS []string           // IPs allowed to access healthz/readyz/infra/prune
	TrustProxy   bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Dispatcher   Dispatcher         // runs the delivery cascade
	MaxBodyBytes int64              // inbound request body cap
	RateLimit    mw.RateLimitConfig // applied to the dispatch endpoint
	Components   []Component        // reported on /infra
	PruneTrigger chan struct{}      // Channel to trigger a manual endpoint prune (nil if pruning disabled)
}
