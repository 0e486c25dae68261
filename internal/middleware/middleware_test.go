package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- CSRF ---

func newCSRFServer() *echo.Echo {
	e := echo.New()
	e.Use(CSRF())
	e.GET("/form", func(c echo.Context) error { return c.String(http.StatusOK, GetCSRFToken(c)) })
	e.POST("/form", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.DELETE("/api/v1/logs/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	return e
}

func TestCSRF_IssuesTokenOnSafeRequest(t *testing.T) {
	e := newCSRFServer()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := cookieNamed(rec, csrfCookieName)
	require.NotNil(t, cookie)
	assert.Len(t, cookie.Value, csrfTokenLength*2)
	assert.Equal(t, cookie.Value, rec.Body.String())
}

func TestCSRF_ReusesExistingCookie(t *testing.T) {
	e := newCSRFServer()

	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	rec := serve(e, req)

	assert.Equal(t, "existing", rec.Body.String())
	assert.Nil(t, cookieNamed(rec, csrfCookieName))
}

func TestCSRF_Validation(t *testing.T) {
	e := newCSRFServer()

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"form field matches", func() *http.Request {
			form := url.Values{csrfFormField: {"tok"}}
			r := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
			r.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			return r
		}, http.StatusNoContent},
		{"header matches on API", func() *http.Request {
			r := httptest.NewRequest(http.MethodDelete, "/api/v1/logs/x", nil)
			r.Header.Set(csrfHeaderName, "tok")
			r.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			return r
		}, http.StatusNoContent},
		{"API is not exempt", func() *http.Request {
			r := httptest.NewRequest(http.MethodDelete, "/api/v1/logs/x", nil)
			r.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			return r
		}, http.StatusForbidden},
		{"mismatch", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/form", nil)
			r.Header.Set(csrfHeaderName, "other")
			r.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			return r
		}, http.StatusForbidden},
		{"no cookie", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/form", nil)
			r.Header.Set(csrfHeaderName, "tok")
			return r
		}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, serve(e, tt.req()).Code)
		})
	}
}

// --- Rate limiting ---

func TestIPLimiters(t *testing.T) {
	l := newIPLimiters(3, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, l.allow("1.2.3.4"))
	assert.True(t, l.allow("5.6.7.8"), "other IPs have their own bucket")

	// One token refills every 20s.
	now = now.Add(20 * time.Second)
	assert.True(t, l.allow("1.2.3.4"))
	assert.False(t, l.allow("1.2.3.4"))
}

func TestIPLimiters_SweepsIdle(t *testing.T) {
	l := newIPLimiters(1, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.allow("1.2.3.4")
	now = now.Add(limiterIdleTTL + time.Second)
	l.allow("5.6.7.8")
	assert.Len(t, l.limiters, 1)
}

func TestRateLimit_Returns429(t *testing.T) {
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(2, time.Minute))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		codes = append(codes, serve(e, req).Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

// --- Headers ---

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self' ws: wss:")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = serve(e, req)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS([]string{"https://app.example/", "*"}))
	e.GET("/api/v1/logs", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := serve(e, req)
	assert.Equal(t, "https://app.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = serve(e, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin), "wildcard must not admit credentialed origins")
}

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS([]string{"https://app.example"}))
	e.Any("/api/v1/logs", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/logs", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := serve(e, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), csrfHeaderName)
}

// --- Request id, logging, recovery ---

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, GetRequestID(c)) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, rec.Body.String(), rec.Header().Get(echo.HeaderXRequestID))

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, given)
	assert.Equal(t, given, serve(e, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "not-a-uuid<script>")
	assert.NotEqual(t, "not-a-uuid<script>", serve(e, req).Body.String())
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(), Recovery())
	e.GET("/panic", func(c echo.Context) error { panic("boom") })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLogger_HandlesError(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger())
	e.GET("/missing", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Metrics ---

type observed struct {
	method, route string
	status        int
}

type recordingObserver struct {
	calls []observed
}

func (r *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	r.calls = append(r.calls, observed{method, route, status})
}

func TestMetrics(t *testing.T) {
	obs := &recordingObserver{}
	e := echo.New()
	e.Use(Metrics(obs))
	e.GET("/logs/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/fail", func(c echo.Context) error { return errors.New("boom") })

	serve(e, httptest.NewRequest(http.MethodGet, "/logs/abc", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/fail", nil))

	require.Len(t, obs.calls, 2)
	assert.Equal(t, observed{"GET", "/logs/:id", 200}, obs.calls[0])
	assert.Equal(t, observed{"GET", "/fail", 500}, obs.calls[1])
}

// --- Proxies ---

func TestTrustedProxies(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{"untrusted peer ignores headers", "8.8.8.8:1000", map[string]string{"X-Real-IP": "1.1.1.1"}, "8.8.8.8"},
		{"trusted peer uses X-Real-IP", "10.1.2.3:1000", map[string]string{"X-Real-IP": "1.1.1.1"}, "1.1.1.1"},
		{"trusted peer uses leftmost XFF", "10.1.2.3:1000", map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1"}, "2.2.2.2"},
		{"trusted peer without headers", "10.1.2.3:1000", nil, "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extract(req))
		})
	}
}
