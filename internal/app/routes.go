package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/middleware"
	"github.com/memzapp/memz/internal/plugins/auth"
	"github.com/memzapp/memz/internal/plugins/logs"
	"github.com/memzapp/memz/internal/templates/layouts"
)

// healthTimeout bounds each dependency check in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. This is the single place
// plugin routes are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	middleware.LayoutInjector = injectLayout

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/logs")
	})
	e.GET("/healthz", a.health)
	if a.Config.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	}

	auth.RegisterRoutes(e, auth.NewHandler(a.Auth, a.Config.Auth.SessionTTL, a.OAuth))

	logs.RegisterRoutes(e,
		logs.NewHandler(a.Logs),
		logs.NewAPIHandler(a.Logs),
		logs.NewLiveHandler(a.Feed, a.Config.BaseURL, a.Metrics.LiveConnections()),
		a.Auth,
	)
}

// injectLayout copies session, CSRF, flash and live-feed data from the
// Echo context into the context templates read.
func injectLayout(c echo.Context, ctx context.Context) context.Context {
	if email := auth.GetEmail(c); email != "" {
		ctx = layouts.SetIsAuthenticated(ctx, true)
		ctx = layouts.SetUserEmail(ctx, email)
	}
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	ctx = layouts.SetFlashError(ctx, middleware.GetString(c, middleware.FlashErrorKey))
	ctx = layouts.SetFlashSuccess(ctx, middleware.GetString(c, middleware.FlashSuccessKey))
	ctx = layouts.SetLiveURL(ctx, middleware.GetString(c, middleware.LiveURLKey))
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)
	return ctx
}

// health reports whether the store, Redis and NATS answer (GET /healthz).
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	switch {
	case a.Stores.DB != nil:
		checks["database"] = "ok"
		if err := a.Stores.DB.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	case a.Stores.Doc != nil:
		checks["document"] = "ok"
		var section []any
		if err := a.Stores.Doc.View(logs.DocumentSection, &section); err != nil {
			checks["document"] = err.Error()
			healthy = false
		}
	}

	if a.Stores.Redis != nil {
		checks["redis"] = "ok"
		if err := a.Stores.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if a.Stores.NATS != nil {
		checks["nats"] = "ok"
		if !a.Stores.NATS.IsConnected() {
			checks["nats"] = a.Stores.NATS.Status().String()
			healthy = false
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
