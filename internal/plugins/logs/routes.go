package logs

import (
	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/plugins/auth"
)

// RegisterRoutes sets up the log pages, the live feeds and the JSON API.
// Every route requires a signed-in, allow-listed user.
func RegisterRoutes(e *echo.Echo, h *Handler, api *APIHandler, live *LiveHandler, authSvc auth.AuthService) {
	g := e.Group("/logs", auth.RequireAuth(authSvc))

	// Static paths before /:id so they aren't taken for log ids.
	g.GET("", h.Index)
	g.POST("", h.Create)
	g.GET("/export", h.Export)
	g.GET("/live", live.Logs)

	g.GET("/:id", h.Show)
	g.POST("/:id/delete", h.Delete)
	g.GET("/:id/stats", h.Stats)
	g.GET("/:id/live", live.Log)
	g.POST("/:id/events", h.CreateEvent)
	g.POST("/:id/events/:eid/delete", h.DeleteEvent)

	a := e.Group("/api/v1/logs", auth.RequireAuth(authSvc))
	a.GET("", api.ListLogs)
	a.POST("", api.CreateLog)
	a.GET("/export", api.Export)
	a.GET("/:id", api.GetLog)
	a.DELETE("/:id", api.DeleteLog)
	a.GET("/:id/events", api.ListEvents)
	a.POST("/:id/events", api.CreateEvent)
	a.DELETE("/:id/events/:eid", api.DeleteEvent)
	a.GET("/:id/stats", api.Stats)
}
