package app

import (
	"github.com/gin-gonic/gin"
	"github.com/TravisBrace/formspree/internal/middleware"
	"github.com/TravisBrace/formspree/internal/modules/auth"
	"github.com/TravisBrace/formspree/internal/modules/dashboard"
	"github.com/TravisBrace/formspree/internal/modules/relay"
	"github.com/TravisBrace/formspree/internal/modules/system/health"
	"github.com/TravisBrace/formspree/internal/pkg/bounce"
	"github.com/TravisBrace/formspree/internal/pkg/captcha"
	pkgmail "github.com/TravisBrace/formspree/internal/pkg/mail"
	"github.com/TravisBrace/formspree/internal/pkg/metrics"
	pkgredis "github.com/TravisBrace/formspree/internal/pkg/redis"
	"github.com/TravisBrace/formspree/internal/pkg/response"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	cfg := a.cfg
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c, "method not allowed")
	})

	// Shared external clients
	sender := pkgmail.New(pkgmail.BuildConfig(cfg))
	captchaClient := captcha.New(cfg.Captcha)
	bounceClient := bounce.New(cfg.Bounce)

	// OptionalAuth must run before RateLimit so authenticated owners
	// testing their own forms are not throttled.
	r.Use(middleware.OptionalAuth())
	r.Use(middleware.RateLimit(rc.Raw(), cfg.Limits.RatePerMinute))

	// Ops endpoints
	health.RegisterRoutes(r, db, rc)
	r.GET("/metrics", metrics.Handler())

	// Public submission surface: form endpoints, confirmation and
	// unsubscribe flows all live at the root so the URLs mailed out and
	// embedded in third-party pages stay short.
	relaySvc := relay.NewService(db, rc, sender, captchaClient, bounceClient, cfg, a.logger)
	relay.NewHandler(relaySvc).RegisterRoutes(r.Group(""))

	// Owner API: JSON envelope, bearer tokens, duplicate-call guard on
	// mutations. Form submissions never pass through here.
	api := r.Group("/api")
	api.Use(middleware.Idempotence(rc.Raw()))
	auth.NewHandler(auth.NewService(db)).RegisterRoutes(api, authMW)
	dashboard.NewHandler(dashboard.NewService(db, cfg)).RegisterRoutes(api, authMW)
}
