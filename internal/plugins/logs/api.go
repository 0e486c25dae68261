package logs

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/apperror"
)

// APIHandler serves the JSON API under /api/v1. Errors are returned as
// AppErrors and rendered as JSON by the central error handler.
type APIHandler struct {
	service LogService
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(service LogService) *APIHandler {
	return &APIHandler{service: service}
}

// ListLogs returns all logs without events (GET /api/v1/logs).
func (h *APIHandler) ListLogs(c echo.Context) error {
	logs, err := h.service.ListLogs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}

// CreateLog creates a log from a JSON body (POST /api/v1/logs).
func (h *APIHandler) CreateLog(c echo.Context) error {
	var req CreateLogRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	l, err := h.service.CreateLog(c.Request().Context(), CreateLogInput{
		Title:       req.Title,
		Description: req.Description,
		Color:       req.Color,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// GetLog returns one log with events (GET /api/v1/logs/:id).
func (h *APIHandler) GetLog(c echo.Context) error {
	l, err := h.service.GetLog(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// DeleteLog removes a log and its events (DELETE /api/v1/logs/:id).
func (h *APIHandler) DeleteLog(c echo.Context) error {
	if err := h.service.DeleteLog(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEvents returns a log's events (GET /api/v1/logs/:id/events).
func (h *APIHandler) ListEvents(c echo.Context) error {
	events, err := h.service.ListEvents(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// CreateEvent adds an event (POST /api/v1/logs/:id/events). The date may
// be omitted, in which case the event is stamped now.
func (h *APIHandler) CreateEvent(c echo.Context) error {
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	input, err := eventInput(req, false)
	if err != nil {
		return err
	}

	e, err := h.service.CreateEvent(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// DeleteEvent removes one event (DELETE /api/v1/logs/:id/events/:eid).
func (h *APIHandler) DeleteEvent(c echo.Context) error {
	if err := h.service.DeleteEvent(c.Request().Context(), c.Param("id"), c.Param("eid")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats returns tag analytics (GET /api/v1/logs/:id/stats?tag=&top=). top
// caps the frequency and co-occurrence rankings; 0 or absent returns all.
func (h *APIHandler) Stats(c echo.Context) error {
	top := 0
	if raw := c.QueryParam("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return apperror.NewBadRequest("top must be a non-negative integer")
		}
		top = n
	}

	stats, err := h.service.Stats(c.Request().Context(), c.Param("id"), c.QueryParam("tag"))
	if err != nil {
		return err
	}

	summary := stats.Summary
	summary.Frequency = summary.Frequency.Top(top)
	summary.CoOccurring = summary.CoOccurring.Top(top)

	return c.JSON(http.StatusOK, map[string]any{
		"log_id":   stats.Log.ID,
		"summary":  summary,
		"matching": stats.Matching,
	})
}

// Export returns the local-storage document (GET /api/v1/logs/export).
func (h *APIHandler) Export(c echo.Context) error {
	logs, err := h.service.Export(c.Request().Context())
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return EncodeDocument(c.Response(), logs)
}
