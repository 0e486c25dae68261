package logs

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memzapp/memz/internal/analytics"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long the client may stay silent before the connection
	// is considered gone. Pings go out at pingPeriod.
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SubscriptionGauge tracks open live connections. prometheus.Gauge
// satisfies it.
type SubscriptionGauge interface {
	Inc()
	Dec()
}

// LiveHandler serves the websocket feeds. Each connection holds one feed
// subscription, released when the client goes away.
type LiveHandler struct {
	feed     *Feed
	upgrader websocket.Upgrader
	gauge    SubscriptionGauge
}

// NewLiveHandler creates the websocket handler. Upgrades are accepted from
// the same host or from baseURL's host. gauge may be nil.
func NewLiveHandler(feed *Feed, baseURL string, gauge SubscriptionGauge) *LiveHandler {
	allowed := ""
	if u, err := url.Parse(baseURL); err == nil {
		allowed = u.Host
	}

	return &LiveHandler{
		feed:  feed,
		gauge: gauge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return u.Host == r.Host || (allowed != "" && u.Host == allowed)
			},
		},
	}
}

// liveLogMessage is pushed on a log's feed.
type liveLogMessage struct {
	Log     *Log               `json:"log,omitempty"`
	Deleted bool               `json:"deleted,omitempty"`
	Summary *analytics.Summary `json:"summary,omitempty"`
}

// liveListMessage is pushed on the log list feed.
type liveListMessage struct {
	Logs []Log `json:"logs"`
}

// Log streams a log and its tag summary (GET /logs/:id/live?tag=). An
// unknown log is rejected before the upgrade.
func (h *LiveHandler) Log(c echo.Context) error {
	logID := c.Param("id")
	query := c.QueryParam("tag")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	snaps, err := h.feed.WatchLog(ctx, logID)
	if err != nil {
		return err
	}

	return h.serve(ctx, cancel, c, func(conn *websocket.Conn) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-snaps:
			if !ok {
				return false
			}
			msg := liveLogMessage{Log: snap.Log, Deleted: snap.Deleted}
			if snap.Log != nil {
				summary := analytics.Summarize(snap.Log.TagSets(), query)
				msg.Summary = &summary
			}
			return writeJSON(conn, msg) && !snap.Deleted
		}
	})
}

// Logs streams the log list (GET /logs/live).
func (h *LiveHandler) Logs(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	lists, err := h.feed.WatchLogs(ctx)
	if err != nil {
		return err
	}

	return h.serve(ctx, cancel, c, func(conn *websocket.Conn) bool {
		select {
		case <-ctx.Done():
			return false
		case logs, ok := <-lists:
			if !ok {
				return false
			}
			return writeJSON(conn, liveListMessage{Logs: logs})
		}
	})
}

// serve upgrades the connection and calls next until it returns false or
// the client disconnects. Pings keep idle connections alive.
func (h *LiveHandler) serve(ctx context.Context, cancel context.CancelFunc, c echo.Context, next func(*websocket.Conn) bool) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.Debug("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	defer conn.Close()

	if h.gauge != nil {
		h.gauge.Inc()
		defer h.gauge.Dec()
	}

	// The read loop only watches for the client going away.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for next(conn) {
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return nil
}

func writeJSON(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		slog.Debug("websocket write failed", slog.Any("error", err))
		return false
	}
	return true
}
