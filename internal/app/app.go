// Package app is the application bootstrap and dependency injection root.
// It takes the opened stores, builds the broker, services and handlers,
// and configures the Echo server around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/config"
	"github.com/memzapp/memz/internal/metrics"
	"github.com/memzapp/memz/internal/middleware"
	"github.com/memzapp/memz/internal/plugins/auth"
	"github.com/memzapp/memz/internal/plugins/logs"
	"github.com/memzapp/memz/internal/realtime"
	"github.com/memzapp/memz/internal/templates/pages"
)

// App holds the shared dependencies and the Echo HTTP server instance.
// Created once at startup by the serve command.
type App struct {
	Config  *config.Config
	Stores  *Stores
	Echo    *echo.Echo
	Metrics *metrics.Metrics

	Broker    realtime.Broker
	OAuth     *auth.OAuthProvider
	AllowList *auth.AllowList
	Auth      auth.AuthService
	Logs      logs.LogService
	Feed      *logs.Feed
}

// New wires the services over stores and configures the Echo server with
// global middleware, error handling and routes.
func New(cfg *config.Config, stores *Stores) (*App, error) {
	allow, err := auth.NewAllowList(cfg.Auth.AllowedEmails, cfg.Auth.AllowlistFile)
	if err != nil {
		return nil, fmt.Errorf("loading allow-list: %w", err)
	}
	if len(allow.Emails()) == 0 {
		slog.Warn("allow-list is empty, nobody can sign in")
	}

	var (
		broker   realtime.Broker
		sessions auth.SessionStore
	)
	switch {
	case stores.NATS != nil:
		broker = realtime.NewNATSBroker(stores.NATS)
	case stores.Redis != nil:
		broker = realtime.NewRedisBroker(stores.Redis)
	default:
		broker = realtime.NewHub()
	}
	if stores.Redis != nil {
		sessions = auth.NewRedisSessionStore(stores.Redis)
	} else {
		sessions = auth.NewMemorySessionStore()
	}

	var oauth *auth.OAuthProvider
	if o := cfg.Auth.OAuth; o.Enabled() {
		oauth = auth.NewOAuthProvider(auth.OAuthOptions{
			Name:         o.Name,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			AuthURL:      o.AuthURL,
			TokenURL:     o.TokenURL,
			UserInfoURL:  o.UserInfoURL,
			RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + "/auth/oauth/callback",
			Scopes:       o.Scopes,
		})
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	a := &App{
		Config:    cfg,
		Stores:    stores,
		Echo:      e,
		Metrics:   metrics.New(),
		Broker:    broker,
		OAuth:     oauth,
		AllowList: allow,
	}

	a.Auth = auth.NewAuthService(stores.Users, sessions, allow, cfg.Auth.SessionTTL)
	a.Logs = logs.NewLogService(stores.Logs, broker, a.Metrics)
	a.Feed = logs.NewFeed(stores.Logs, broker)

	a.setupMiddleware()
	e.HTTPErrorHandler = a.errorHandler
	a.RegisterRoutes()

	return a, nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: request id and logging wrap everything, recovery sits
// inside them so a panic is logged as a 500.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestID())
	a.Echo.Use(middleware.RequestLogger())
	if a.Config.MetricsEnabled {
		a.Echo.Use(middleware.Metrics(a.Metrics))
	}
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.SecurityHeaders())
	if len(a.Config.HTTP.CORSOrigins) > 0 {
		a.Echo.Use(middleware.CORS(a.Config.HTTP.CORSOrigins))
	}
	a.Echo.Use(middleware.CSRF())
}

// errorHandler maps errors to responses: JSON for the API, a redirect to
// /login for a browser 401, and an error page otherwise.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := defaultErrorMessage(code)

	var echoErr *echo.HTTPError
	if appErr, ok := apperror.As(err); ok {
		code, errType, message = appErr.Code, appErr.Type, appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.GetRequestID(c)),
			)
		}
	} else if errors.As(err, &echoErr) {
		code = echoErr.Code
		errType = strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_")
		message = defaultErrorMessage(code)
		if msg, ok := echoErr.Message.(string); ok && msg != "" && msg != http.StatusText(code) {
			message = msg
		}
		if echoErr.Internal != nil {
			slog.Error("request failed",
				slog.Int("status", code),
				slog.Any("internal", echoErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
			slog.String("request_id", middleware.GetRequestID(c)),
		)
	}

	var writeErr error
	switch {
	case strings.HasPrefix(c.Request().URL.Path, "/api/"):
		writeErr = c.JSON(code, map[string]string{"error": errType, "message": message})
	case c.Request().Method == http.MethodHead:
		writeErr = c.NoContent(code)
	case code == http.StatusUnauthorized:
		writeErr = c.Redirect(http.StatusSeeOther, "/login")
	case code == http.StatusNotFound:
		writeErr = middleware.Render(c, code, pages.NotFoundPage(message))
	default:
		writeErr = middleware.Render(c, code, pages.ErrorPage(code, message))
	}
	if writeErr != nil {
		slog.Warn("writing error response failed", slog.Any("error", writeErr))
	}
}

// defaultErrorMessage returns a user-friendly message for common status
// codes when the error carries none of its own.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to sign in to see this page."
	case http.StatusForbidden:
		return "You don't have permission to do that."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// Start begins listening on the configured port. ctx scopes the allow-list
// file watcher.
func (a *App) Start(ctx context.Context) error {
	if err := a.AllowList.Watch(ctx); err != nil {
		slog.Warn("allow-list file will not be reloaded", slog.Any("error", err))
	}

	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Memz server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("backend", a.Config.Store.Backend),
	)
	return a.Echo.Start(addr)
}

// Shutdown drains in-flight requests until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}
