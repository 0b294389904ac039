package barkeep

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/patron/pkg/httpx"
	"github.com/aussiebroadwan/patron/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	Service     *Service
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

func NewRouter(svc *Service, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		Service:      svc,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	// POST /token - strict rate limit by IP + username to slow down
	// password guessing without starving other patrons on the same IP
	tokenHandler := &TokenHandler{Service: r.Service}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// GET /tab - authenticated endpoint, moderate rate limit by subject
	tabHandler := &TabHandler{Service: r.Service}
	r.Mux.Handle("GET /v1/tab",
		httpx.Chain(tabHandler,
			httpx.AuthnMiddleware(r.Service),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// GET /livez - lenient rate limit (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}
