package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	Audit *handler.AuditHandler
	Docs  *handler.DocsHandler

	// Health is optional; when set, /health answers 503 while it fails.
	Health func(context.Context) error
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if h.Health != nil {
			if err := h.Health(req.Context()); err != nil {
				slog.Warn("health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/openapi.yaml", h.Docs.OpenAPI)
	r.Get("/swagger", h.Docs.SwaggerUI)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/signup", h.Auth.Signup)
			auth.Post("/signin", h.Auth.Signin)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Post("/reset-password", h.Auth.ResetPassword)
			auth.Post("/verify-account", h.Auth.VerifyAccount)
			auth.Get("/verify-account", h.Auth.VerifyAccountLink)
			auth.Post("/resend-verification", h.Auth.ResendVerification)
			auth.Post("/refresh-token", h.Auth.RefreshToken)
			auth.With(authMiddleware.RequireAuth).Get("/me", h.User.Me)
			auth.With(authMiddleware.RequireAuth).Get("/activity", h.Audit.Activity)
		})
	})

	return r
}
