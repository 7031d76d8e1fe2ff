package api

import (
	"net"
	"net/http"
	"time"

	"github.com/mfc-shop/mfc-shop/internal/analytics"
	apimw "github.com/mfc-shop/mfc-shop/internal/api/middleware"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	"github.com/mfc-shop/mfc-shop/pkg/health"
	"github.com/mfc-shop/mfc-shop/pkg/metrics"
	pkgmw "github.com/mfc-shop/mfc-shop/pkg/middleware"
)

// RouterConfig holds what the router needs besides the handlers.
type RouterConfig struct {
	CORS           config.CORSConfig
	Limiter        *apimw.Limiter
	TrustedProxies []*net.IPNet
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// NewRouter builds the shop HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/extract             → shop section of an uploaded page
//	GET    /api/v1/pages?url=          → shop section of a fetched page
//	POST   /api/v1/translate           → segment a query
//	POST   /api/v1/query/add           → append a term to a query
//	POST   /api/v1/query/remove        → remove a segment from a query
//	GET    /api/v1/merchants           → merchant list
//	GET    /api/v1/search              → redirect to a merchant search
//	GET    /api/v1/analytics           → aggregated hand-off stats
//	GET    /api/v1/cache/stats         → term cache counters
//	POST   /api/v1/cache/invalidate    → drop cached pages
//	GET    /health/live, /health/ready → probes
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Metrics → Timeout → mux
func NewRouter(h *Handler, stats *analytics.Handler, checker *health.Checker, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/extract", h.Extract)
	mux.HandleFunc("GET /api/v1/pages", h.Page)

	mux.HandleFunc("POST /api/v1/translate", h.Translate)
	mux.HandleFunc("POST /api/v1/query/add", h.AddTerm)
	mux.HandleFunc("POST /api/v1/query/remove", h.RemoveSegment)

	mux.HandleFunc("GET /api/v1/merchants", h.Merchants)
	mux.HandleFunc("GET /api/v1/search", h.Search)

	if stats != nil {
		mux.HandleFunc("GET /api/v1/analytics", stats.Stats)
		mux.HandleFunc("GET /api/v1/analytics/snapshots", stats.Snapshots)
	}

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	// Applied inside-out.
	var chain http.Handler = mux
	if cfg.RequestTimeout > 0 {
		chain = pkgmw.Timeout(cfg.RequestTimeout)(chain)
	}
	if cfg.Metrics != nil {
		chain = pkgmw.Metrics(cfg.Metrics)(chain)
	}
	if cfg.Limiter != nil {
		chain = apimw.RateLimit(cfg.Limiter, cfg.TrustedProxies)(chain)
	}
	chain = apimw.CORS(cfg.CORS)(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
