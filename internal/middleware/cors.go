package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowHeaders = strings.Join([]string{
		echo.HeaderContentType, csrfHeaderName, echo.HeaderXRequestID,
	}, ", ")
)

// CORS lets the listed origins call the JSON API with the session cookie.
// Requests from other origins pass through without CORS headers, so the
// browser blocks them. Wildcards are not accepted because the API is
// credentialed. An empty list disables the middleware.
func CORS(allowedOrigins []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o != "*" {
			allowed[strings.TrimRight(o, "/")] = true
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !allowed[origin] {
				return next(c)
			}

			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if req.Method == http.MethodOptions {
				h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
				h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
				h.Set(echo.HeaderAccessControlMaxAge, "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set(echo.HeaderAccessControlExposeHeaders, echo.HeaderXRequestID)
			return next(c)
		}
	}
}
