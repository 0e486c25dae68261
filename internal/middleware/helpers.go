package middleware

import (
	"context"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Echo context keys handlers set for the layout to pick up.
const (
	// FlashErrorKey holds an error message shown above the page body.
	FlashErrorKey = "flash_error"

	// FlashSuccessKey holds a success message shown above the page body.
	FlashSuccessKey = "flash_success"

	// LiveURLKey holds the websocket path the page subscribes to for live
	// updates.
	LiveURLKey = "live_url"
)

// LayoutInjector copies layout data from the Echo context (session, CSRF
// token, flash messages) into the context.Context that templates read.
// Registered once at startup in app/routes.go so this package never
// imports plugin types.
var LayoutInjector func(echo.Context, context.Context) context.Context

// Render writes a templ component with the given status code, running the
// LayoutInjector first when one is registered.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}

// GetString returns a string value stored in the Echo context, or "".
func GetString(c echo.Context, key string) string {
	s, _ := c.Get(key).(string)
	return s
}
