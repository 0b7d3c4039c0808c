package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/metrics/export/prometheus"
	"github.com/MrEthical07/portalauth/middleware"
	"github.com/go-chi/chi/v5"
)

// Options wires the router.
type Options struct {
	Engine *portalauth.Engine
	Logger *slog.Logger
	// LoginRateLimit guards the credential and code endpoints per client IP.
	LoginRateLimit middleware.RateLimitConfig
	// TrustedProxies may name the client through forwarding headers. Nil
	// trusts no peer.
	TrustedProxies *middleware.TrustedProxies
	// Readiness is checked by /healthz next to the engine. Optional.
	Readiness func(ctx context.Context) error
}

type handler struct {
	engine    *portalauth.Engine
	cookies   middleware.Cookies
	logger    *slog.Logger
	readiness func(ctx context.Context) error
}

// NewRouter builds the HTTP surface. ctx bounds background work such as the
// rate limiter's sweeper.
func NewRouter(ctx context.Context, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Engine.Config()
	public := middleware.NewPublicPaths(cfg.Gatekeeper.PublicPaths)
	h := &handler{
		engine:    opts.Engine,
		cookies:   middleware.CookiesFromConfig(cfg),
		logger:    logger,
		readiness: opts.Readiness,
	}
	httpMetrics := newRequestMetrics()

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.ClientInfo(opts.TrustedProxies))
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.PanicRecovery())
	r.Use(httpMetrics.instrument)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", prometheus.NewExporter(opts.Engine).Handler(httpMetrics.collectors()...))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(ctx, opts.LoginRateLimit))

		r.Post("/login", h.sessionLogin)
		r.Post("/login/verify-2fa", h.sessionVerify)
		r.Post("/auth/login", h.tokenLogin)
		r.Post("/auth/verify-2fa", h.tokenVerify)
		r.Post("/auth/refresh-token", h.refresh)
	})

	// /auth/check is allow-listed, so it resolves the session with an empty
	// allow-list of its own and answers 401 itself.
	r.With(middleware.RevalidateSession(opts.Engine, nil, h.cookies)).Get("/auth/check", h.check)
	r.Post("/logout", h.logout)

	r.With(middleware.RequireBearer(opts.Engine, public)).Get("/auth/check-auth", h.checkBearer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RevalidateSession(opts.Engine, public, h.cookies))
		r.Use(middleware.RequireSession(public))

		r.Post("/auth/2fa/setup", h.twoFactorSetup)
		r.Post("/auth/2fa/enable", h.twoFactorEnable)
		r.Post("/auth/2fa/disable", h.twoFactorDisable)
		r.Delete("/auth/trusted-devices", h.revokeTrustedDevices)
		r.Post("/auth/change-password", h.changePassword)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, messageResponse{Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "method not allowed"})
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.engine.Ping(ctx)
	if err == nil && h.readiness != nil {
		err = h.readiness(ctx)
	}
	if err != nil {
		middleware.LoggerFromContext(ctx).WarnContext(ctx, "health check failed", slog.Any("error", err))
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
