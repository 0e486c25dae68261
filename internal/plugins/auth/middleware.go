package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// contextKeySession stores the validated session in the Echo context.
const contextKeySession = "auth_session"

// RequireAuth returns middleware that validates the session cookie and
// stores the session in the request context. Browsers without a valid
// session are redirected to /login; API clients get a 401.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getSessionToken(c)
			if token == "" {
				return handleUnauthenticated(c)
			}

			session, err := service.ValidateSession(c.Request().Context(), token)
			if err != nil {
				clearSessionCookie(c)
				return handleUnauthenticated(c)
			}

			c.Set(contextKeySession, session)
			return next(c)
		}
	}
}

// handleUnauthenticated answers requests without a valid session.
func handleUnauthenticated(c echo.Context) error {
	if isAPIRequest(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// GetSession returns the authenticated session, or nil when the request did
// not pass through RequireAuth.
func GetSession(c echo.Context) *Session {
	session, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return session
}

// GetEmail returns the signed-in user's email, or "".
func GetEmail(c echo.Context) string {
	if s := GetSession(c); s != nil {
		return s.Email
	}
	return ""
}

func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}
