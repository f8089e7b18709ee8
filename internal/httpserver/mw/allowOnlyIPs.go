package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
	"github.com/MrSnakeDoc/dispatchprobe/internal/utils"
)

// AllowOnlyCIDRS guards the admin endpoints by client address. An empty
// list disables the check. trustProxy selects the forwarded client IP.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if m.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			forbid(w, r, log, "client ip not allowed",
				logger.String("ip", ip),
				logger.Bool("trust_proxy", trustProxy))
		})
	}
}

// forbid answers 403 and logs the rejected admin call.
func forbid(w http.ResponseWriter, r *http.Request, log logger.Logger, reason string, fields ...logger.Field) {
	log.Debug("admin request rejected", append(fields,
		logger.String("reason", reason),
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path))...)
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
