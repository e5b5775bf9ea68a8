package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rainbow-buyers/internal/config"
	"rainbow-buyers/internal/handler"
	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Avatar *handler.AvatarHandler
	Audit  *handler.AuditHandler
	Feed   *handler.AuditFeedHandler
	Health *handler.HealthHandler
	Docs   *handler.DocsHandler
	Pages  *handler.PageHandler
}

func New(cfg *config.Config, logger *slog.Logger, authMiddleware *middleware.AuthMiddleware, guard *middleware.RouteGuard, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Check)
	r.Get("/openapi.yaml", h.Docs.OpenAPI)
	r.Get("/swagger", h.Docs.SwaggerUI)

	r.Route("/api", func(api chi.Router) {
		admin := api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin, model.RoleSuperAdmin))

		admin.With(middleware.Timeout(cfg.RequestTimeout)).Get("/admin/audit", h.Audit.List)
		// Websocket upgrades need a hijackable writer; http.TimeoutHandler has none.
		admin.Get("/admin/audit/live", h.Feed.Live)

		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(cfg.RequestTimeout))

			timed.Route("/authentication", func(auth chi.Router) {
				auth.Post("/register", h.Auth.Register)
				auth.Post("/login", h.Auth.Login)
				auth.Post("/resend-otp", h.Auth.ResendOTP)
				auth.Post("/verify-login-otp", h.Auth.VerifyLoginOTP)
				auth.Post("/forgot-password", h.Auth.ForgotPassword)
				auth.Post("/verify-otp", h.Auth.VerifyOTP)
				auth.Post("/reset-password", h.Auth.ResetPassword)
				auth.Post("/refresh", h.Auth.Refresh)
				auth.Post("/logout", h.Auth.Logout)
				auth.Get("/me", h.Auth.Me)
				auth.Post("/verifyemailbytoken", h.Auth.VerifyEmailByToken)
				auth.Get("/avatar/{id}", h.Avatar.Get)
				auth.With(authMiddleware.RequireAuth).Put("/avatar", h.Avatar.Upload)
			})
		})
	})

	r.Group(func(pages chi.Router) {
		pages.Use(guard.Handler)
		pages.Get("/*", h.Pages.Serve)
		pages.Head("/*", h.Pages.Serve)
	})

	return r
}
