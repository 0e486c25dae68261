package logs

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/analytics"
	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/middleware"
)

// Handler handles HTTP requests for logs and events. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service LogService
	now     func() time.Time
}

// NewHandler creates a new logs handler.
func NewHandler(service LogService) *Handler {
	return &Handler{service: service, now: time.Now}
}

// --- Logs ---

// Index renders the log list (GET /logs).
func (h *Handler) Index(c echo.Context) error {
	return h.renderList(c, http.StatusOK, CreateLogRequest{}, "")
}

// Create processes the create-log form (POST /logs).
func (h *Handler) Create(c echo.Context) error {
	var req CreateLogRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	_, err := h.service.CreateLog(c.Request().Context(), CreateLogInput{
		Title:       req.Title,
		Description: req.Description,
		Color:       req.Color,
	})
	if err != nil {
		if appErr, ok := apperror.As(err); ok && appErr.Code < 500 {
			return h.renderList(c, appErr.Code, req, appErr.Message)
		}
		return err
	}

	return c.Redirect(http.StatusSeeOther, "/logs")
}

// Delete removes a log and its events (POST /logs/:id/delete). A failed
// delete re-renders the list with the error rather than redirecting.
func (h *Handler) Delete(c echo.Context) error {
	err := h.service.DeleteLog(c.Request().Context(), c.Param("id"))
	if err != nil {
		if apperror.IsNotFound(err) {
			return c.Redirect(http.StatusSeeOther, "/logs")
		}
		c.Set(middleware.FlashErrorKey, apperror.SafeMessage(err))
		return h.renderList(c, apperror.SafeCode(err), CreateLogRequest{}, "")
	}
	return c.Redirect(http.StatusSeeOther, "/logs")
}

// Show renders a log with its events (GET /logs/:id).
func (h *Handler) Show(c echo.Context) error {
	return h.renderDetail(c, http.StatusOK, CreateEventRequest{}, "")
}

// --- Events ---

// CreateEvent processes the add-event form (POST /logs/:id/events).
func (h *Handler) CreateEvent(c echo.Context) error {
	logID := c.Param("id")

	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	input, err := eventInput(req, true)
	if err == nil {
		_, err = h.service.CreateEvent(c.Request().Context(), logID, input)
	}
	if err != nil {
		if appErr, ok := apperror.As(err); ok && appErr.Code < 500 && !apperror.IsNotFound(err) {
			return h.renderDetail(c, appErr.Code, req, appErr.Message)
		}
		return err
	}

	return c.Redirect(http.StatusSeeOther, "/logs/"+logID)
}

// DeleteEvent removes one event (POST /logs/:id/events/:eid/delete).
func (h *Handler) DeleteEvent(c echo.Context) error {
	logID := c.Param("id")
	if err := h.service.DeleteEvent(c.Request().Context(), logID, c.Param("eid")); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/logs/"+logID)
}

// --- Stats ---

// Stats renders tag analytics for a log (GET /logs/:id/stats?tag=).
func (h *Handler) Stats(c echo.Context) error {
	logID := c.Param("id")
	stats, err := h.service.Stats(c.Request().Context(), logID, c.QueryParam("tag"))
	if err != nil {
		return err
	}

	c.Set(middleware.LiveURLKey, "/logs/"+logID+"/live")
	return middleware.Render(c, http.StatusOK, LogStatsPage(newStatsView(stats, middleware.GetCSRFToken(c))))
}

// --- Export ---

// Export downloads every log as the local-storage JSON document
// (GET /logs/export).
func (h *Handler) Export(c echo.Context) error {
	logs, err := h.service.Export(c.Request().Context())
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("memz-logs-%s.json", h.now().UTC().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return EncodeDocument(c.Response(), logs)
}

// --- Rendering helpers ---

func (h *Handler) renderList(c echo.Context, status int, form CreateLogRequest, formError string) error {
	logs, err := h.service.ListLogs(c.Request().Context())
	if err != nil {
		return err
	}

	c.Set(middleware.LiveURLKey, "/logs/live")
	return middleware.Render(c, status, LogListPage(listView{
		Logs:      logs,
		Form:      form,
		FormError: formError,
		CSRFToken: middleware.GetCSRFToken(c),
	}))
}

func (h *Handler) renderDetail(c echo.Context, status int, form CreateEventRequest, formError string) error {
	logID := c.Param("id")
	l, err := h.service.GetLog(c.Request().Context(), logID)
	if err != nil {
		return err
	}

	c.Set(middleware.LiveURLKey, "/logs/"+logID+"/live")
	return middleware.Render(c, status, LogDetailPage(detailView{
		Log:       l,
		Form:      form,
		FormError: formError,
		Today:     h.now().Format(dateLayout),
		TopTags:   analytics.Frequency(l.TagSets()).Top(analytics.TopSummary),
		CSRFToken: middleware.GetCSRFToken(c),
	}))
}

// eventInput converts a bound request into service input. Form posts carry
// comma-separated tags; JSON bodies may send a list instead. The form
// requires a date; the API falls back to now when it is left out.
func eventInput(req CreateEventRequest, requireDate bool) (CreateEventInput, error) {
	raw := strings.TrimSpace(req.Date)
	if raw == "" && requireDate {
		return CreateEventInput{}, apperror.NewValidation("Event date is required.")
	}
	date, ok := parseDate(raw)
	if !ok {
		return CreateEventInput{}, apperror.NewValidation("Date must be a valid date.")
	}

	tags := req.TagList
	if req.Tags != "" {
		tags = append(tags, analytics.ParseTags(req.Tags)...)
	}

	return CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		Tags:        tags,
	}, nil
}
