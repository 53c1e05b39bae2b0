// Package router wires up the search API routes and applies the middleware
// chain (RequestID → CORS → RateLimit → Metrics → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/handler"
	srvmw "github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Options carries the pieces of configuration the chain needs. A nil
// Limiter disables rate limiting.
type Options struct {
	CORS           config.CORSConfig
	Limiter        *srvmw.Limiter
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
}

// New builds the full HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/sessions              → create session
//	GET    /api/v1/sessions/{id}/query   → one keystroke (?q=)
//	DELETE /api/v1/sessions/{id}         → reset and drop session
//	GET    /api/v1/search                → one-shot search (?q=&limit=)
//	GET    /api/v1/index                 → last reload report
//	POST   /api/v1/index/reload          → reload shards now
//	GET    /api/v1/analytics             → aggregated search stats
//	GET    /api/v1/cache/stats           → shared cache counters
//	POST   /api/v1/cache/invalidate      → drop shared cache pages
//	GET    /health/live, /health/ready   → probes
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/query", h.SessionQuery)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.DeleteSession)

	mux.HandleFunc("GET /api/v1/search", h.Search)

	mux.HandleFunc("GET /api/v1/index", h.IndexStatus)
	mux.HandleFunc("POST /api/v1/index/reload", h.ReloadIndex)

	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	// applied inside-out
	var chain http.Handler = mux
	chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	if opts.Limiter != nil {
		chain = srvmw.RateLimit(opts.Limiter)(chain)
	}
	chain = srvmw.CORS(srvmw.NewCORSConfig(opts.CORS))(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
