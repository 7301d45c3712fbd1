package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/cyclecore"
	promexport "github.com/MrEthical07/cyclecore/metrics/export/prometheus"
	"github.com/MrEthical07/cyclecore/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const refreshCookieName = "refresh_token"

// Deps collects what the router needs. Engine is required.
type Deps struct {
	Engine *cyclecore.Engine
	Logger *slog.Logger

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Throttle limits /auth/login and /auth/refresh per client when set.
	Throttle *middleware.Throttle

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// SecureCookies marks the refresh cookie Secure. Enable it whenever TLS terminates in front
	// of the daemon.
	SecureCookies bool
	// RefreshCookieTTL is the cookie Max-Age. It should match the refresh token TTL.
	RefreshCookieTTL time.Duration
}

// NewRouter wires the routes.
//
//	GET  /healthz
//	GET  /metrics
//	POST /auth/login
//	POST /auth/refresh
//	GET  /stats
//	POST /stats/periods
//	POST /stats/temperatures
//	GET  /stats/fertile-window
//	GET  /stats/next-period
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handler{
		engine:        d.Engine,
		logger:        d.Logger,
		secureCookies: d.SecureCookies,
		cookieTTL:     d.RefreshCookieTTL,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.ClientIP)
	r.Use(middleware.NewLoggingMiddleware(d.Logger))

	r.Get("/healthz", h.health)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promexport.Handler(d.Gatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		if d.Throttle != nil {
			r.Use(d.Throttle.Middleware)
		}
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
	})

	r.Route("/stats", func(r chi.Router) {
		r.Use(middleware.Guard(d.Engine))
		r.Get("/", h.snapshot)
		r.Post("/periods", h.recordPeriod)
		r.Post("/temperatures", h.recordTemperature)
		r.Get("/fertile-window", h.fertileWindow)
		r.Get("/next-period", h.nextPeriod)
	})

	return r
}
