package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mfc-shop/mfc-shop/pkg/config"
)

var (
	allowMethods = []string{"GET", "POST", "OPTIONS"}
	allowHeaders = []string{"Content-Type", "X-Request-ID"}
)

// CORS sets the CORS response headers for allowed origins and answers
// preflight requests. The catalog site itself is the usual origin.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !originAllowed(cfg.AllowOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(allowMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowHeaders, ", "))
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
			if cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches exact origins, "*" and "*.domain" wildcards.
func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		switch {
		case o == "*", o == origin:
			return true
		case strings.HasPrefix(o, "*."):
			if _, host, ok := strings.Cut(origin, "://"); ok && strings.HasSuffix(host, o[1:]) {
				return true
			}
		}
	}
	return false
}
