// Package logs manages logs and their events, the core content of Memz. A
// log is a named container (a trip, a relationship, a project) holding
// timestamped events with free-text notes and tags.
//
// The package owns the repository boundary. Whatever the backend stores is
// normalized here into Log and Event values before anything downstream
// (tag analytics, templates, the live feed) sees it.
package logs

import (
	"regexp"
	"time"

	"github.com/memzapp/memz/internal/analytics"
)

// Field limits. They match the column sizes in db/migrations.
const (
	maxTitleLength = 200
	maxTagLength   = 100
)

// colorPattern accepts "#rrggbb" display colors.
var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// --- Domain Models ---

// Log is a named collection of events. Events are ordered newest-first.
// EventCount is filled on list views, where Events is not loaded.
type Log struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Events      []Event   `json:"events"`
	EventCount  int       `json:"event_count"`
}

// TagSets returns the tag list of every event, in event order. This is the
// input shape of the analytics package.
func (l *Log) TagSets() [][]string {
	sets := make([][]string, len(l.Events))
	for i, e := range l.Events {
		sets[i] = e.Tags
	}
	return sets
}

// Event is a single timestamped entry in a log. Timestamp is the date the
// user gave the event; CreatedAt is when it was recorded. Events are never
// edited after creation.
type Event struct {
	ID          string    `json:"id"`
	LogID       string    `json:"log_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasTag reports whether the event carries tag after normalization.
func (e *Event) HasTag(tag string) bool {
	return analytics.Contains(e.Tags, analytics.NormalizeTag(tag))
}

// LogSnapshot is one delivery on a log's live feed. Deleted is set when the
// log no longer exists, after which the feed sends nothing more.
type LogSnapshot struct {
	Log     *Log `json:"log,omitempty"`
	Deleted bool `json:"deleted"`
}

// --- Service Inputs ---

// CreateLogInput is the validated input for creating a log.
type CreateLogInput struct {
	Title       string
	Description string
	Color       string
}

// CreateEventInput is the validated input for adding an event to a log. A
// zero Date means "now".
type CreateEventInput struct {
	Title       string
	Description string
	Date        time.Time
	Tags        []string
}

// --- Request DTOs ---

// CreateLogRequest is bound from the create-log form or JSON body.
type CreateLogRequest struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Color       string `json:"color" form:"color"`
}

// CreateEventRequest is bound from the add-event form or JSON body. Tags is
// the comma-separated form field; TagList is the JSON array alternative.
// Date is "YYYY-MM-DD" from the form or RFC 3339 from the API.
type CreateEventRequest struct {
	Title       string   `json:"title" form:"title"`
	Description string   `json:"description" form:"description"`
	Date        string   `json:"date" form:"date"`
	Tags        string   `json:"-" form:"tags"`
	TagList     []string `json:"tags" form:"-"`
}

// dateLayout is the HTML date input format.
const dateLayout = "2006-01-02"

// parseDate accepts the form's date input or a full RFC 3339 timestamp.
// An empty string yields the zero time.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// Topic names on the change broker.
const topicLogs = "logs"

func logTopic(id string) string {
	return "log:" + id
}
