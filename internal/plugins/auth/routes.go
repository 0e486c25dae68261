package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/middleware"
)

// RegisterRoutes sets up the sign-in routes. They are public; RequireAuth is
// exported for the route groups that need a session.
//
// POST /login and the OAuth start allow 10 attempts per IP per minute.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	e.POST("/logout", h.Logout)

	e.GET("/auth/oauth/login", h.OAuthStart, middleware.RateLimit(10, time.Minute))
	e.GET("/auth/oauth/callback", h.OAuthCallback)
}
