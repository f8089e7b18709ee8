package mw

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
	"github.com/MrSnakeDoc/dispatchprobe/internal/utils"
)

// hostPattern is an exact host or a "*.suffix" wildcard, lowercased and
// without port.
type hostPattern struct {
	exact  string
	suffix string // ".example.com" for "*.example.com"
}

func parseHostPattern(raw string) hostPattern {
	h := strings.ToLower(utils.ParseHostNoPort(strings.TrimSpace(raw)))
	if rest, ok := strings.CutPrefix(h, "*"); ok && strings.HasPrefix(rest, ".") {
		return hostPattern{suffix: rest}
	}
	return hostPattern{exact: h}
}

// match: "*.example.com" covers sub.example.com but not example.com.
func (p hostPattern) match(host string) bool {
	if p.suffix != "" {
		return strings.HasSuffix(host, p.suffix)
	}
	return host == p.exact
}

// EnforceHost restricts the admin endpoints to the configured Host headers.
// Matching ignores case and port. An empty list disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	patterns := make([]hostPattern, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		patterns = append(patterns, parseHostPattern(h))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(utils.ParseHostNoPort(r.Host))
			for _, p := range patterns {
				if p.match(host) {
					next.ServeHTTP(w, r)
					return
				}
			}
			forbid(w, r, log, "host not allowed", logger.String("host", r.Host))
		})
	}
}
