package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/middleware"
)

// sessionCookieName is the HTTP cookie used to store the session token.
const sessionCookieName = "memz_session"

// OAuth round-trip cookies. They live only between the redirect to the
// provider and the callback.
const (
	oauthStateCookie    = "memz_oauth_state"
	oauthVerifierCookie = "memz_oauth_verifier"
	oauthCookiePath     = "/auth/oauth"
	oauthCookieMaxAge   = 10 * 60
)

// homePath is where a signed-in user lands.
const homePath = "/logs"

// Handler handles sign-in and sign-out. Handlers are thin: they bind the
// request, call the service, and render the response.
type Handler struct {
	service    AuthService
	sessionTTL time.Duration
	oauth      *OAuthProvider
}

// NewHandler creates a new auth handler. sessionTTL sets the cookie
// lifetime and should match the service's. A nil oauth disables the
// single sign-on routes.
func NewHandler(service AuthService, sessionTTL time.Duration, oauth *OAuthProvider) *Handler {
	return &Handler{service: service, sessionTTL: sessionTTL, oauth: oauth}
}

// LoginForm renders the sign-in page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	if token := getSessionToken(c); token != "" {
		if _, err := h.service.ValidateSession(c.Request().Context(), token); err == nil {
			return c.Redirect(http.StatusSeeOther, homePath)
		}
	}
	return h.loginPage(c, http.StatusOK, "", "")
}

// Login processes the sign-in form (POST /login). A refused or wrong
// sign-in re-renders the form with the reason.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	token, _, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		appErr, ok := apperror.As(err)
		if !ok || appErr.Code >= http.StatusInternalServerError {
			return err
		}
		return h.loginPage(c, appErr.Code, req.Email, appErr.Message)
	}

	h.setSessionCookie(c, token)
	return c.Redirect(http.StatusSeeOther, homePath)
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if token := getSessionToken(c); token != "" {
		// The cookie is cleared regardless.
		_ = h.service.DestroySession(c.Request().Context(), token)
	}
	clearSessionCookie(c)
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) loginPage(c echo.Context, status int, email, errMsg string) error {
	var provider string
	if h.oauth != nil {
		provider = h.oauth.Name()
	}
	return middleware.Render(c, status, LoginPage(middleware.GetCSRFToken(c), email, errMsg, provider))
}

// --- Cookie helpers ---

func getSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets an HttpOnly, SameSite=Lax session cookie, Secure
// when the request came over TLS.
func (h *Handler) setSessionCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})
}

func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// OAuthStart redirects to the provider (GET /auth/oauth/login).
func (h *Handler) OAuthStart(c echo.Context) error {
	if h.oauth == nil {
		return apperror.NewNotFound("single sign-on is not configured")
	}

	state, err := generateSessionToken()
	if err != nil {
		return apperror.NewInternal(err)
	}
	verifier := oauth2.GenerateVerifier()

	setOAuthCookie(c, oauthStateCookie, state, oauthCookieMaxAge)
	setOAuthCookie(c, oauthVerifierCookie, verifier, oauthCookieMaxAge)
	return c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state, verifier))
}

// OAuthCallback finishes the provider round trip (GET /auth/oauth/callback).
// Every failure lands back on the sign-in form.
func (h *Handler) OAuthCallback(c echo.Context) error {
	if h.oauth == nil {
		return apperror.NewNotFound("single sign-on is not configured")
	}

	state := cookieValue(c, oauthStateCookie)
	verifier := cookieValue(c, oauthVerifierCookie)
	setOAuthCookie(c, oauthStateCookie, "", -1)
	setOAuthCookie(c, oauthVerifierCookie, "", -1)

	failed := "Sign-in with " + h.oauth.Name() + " failed. Please try again."

	if reason := c.QueryParam("error"); reason != "" {
		slog.Info("oauth sign-in cancelled", slog.String("reason", reason))
		return h.loginPage(c, http.StatusUnauthorized, "", failed)
	}
	if state == "" || verifier == "" || c.QueryParam("state") != state {
		return h.loginPage(c, http.StatusBadRequest, "", failed)
	}

	email, err := h.oauth.Email(c.Request().Context(), c.QueryParam("code"), verifier)
	if err != nil {
		slog.Warn("oauth sign-in failed", slog.Any("error", err))
		return h.loginPage(c, http.StatusUnauthorized, "", failed)
	}

	token, _, err := h.service.LoginExternal(c.Request().Context(), email, c.RealIP())
	if err != nil {
		appErr, ok := apperror.As(err)
		if !ok || appErr.Code >= http.StatusInternalServerError {
			return err
		}
		return h.loginPage(c, appErr.Code, email, appErr.Message)
	}

	h.setSessionCookie(c, token)
	return c.Redirect(http.StatusSeeOther, homePath)
}

func cookieValue(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setOAuthCookie is Lax so it survives the top-level redirect back from the
// provider. A negative maxAge clears it.
func setOAuthCookie(c echo.Context, name, value string, maxAge int) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthCookiePath,
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
