package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/memzapp/memz/internal/analytics"
	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/database"
)

// DocumentSection is the key the log array is stored under, the same key
// the browser build used in local storage.
const DocumentSection = "memz-logs"

// storedLog is the on-disk shape of a log in the local-storage document.
type storedLog struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	CreatedAt   flexTime      `json:"createdAt"`
	Events      []storedEvent `json:"events"`
	Color       string        `json:"color,omitempty"`
}

// storedEvent is the on-disk shape of an event.
type storedEvent struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Timestamp   flexTime `json:"timestamp"`
	Tags        flexTags `json:"tags"`
}

// flexTime is an ISO-8601 timestamp that tolerates bad input. Anything it
// can't parse decodes as the zero time.
type flexTime time.Time

func (t flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = flexTime{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		*t = flexTime{}
		return nil
	}
	*t = flexTime(parsed.UTC())
	return nil
}

// flexTags is an event's tag list. A value that isn't a list decodes as no
// tags, and non-string items are dropped.
type flexTags []string

func (f *flexTags) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*f = flexTags{}
		return nil
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			tags = append(tags, s)
		}
	}
	*f = analytics.NormalizeTags(tags)
	return nil
}

func (s storedLog) toLog() Log {
	l := Log{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Color:       s.Color,
		CreatedAt:   time.Time(s.CreatedAt),
		Events:      make([]Event, 0, len(s.Events)),
	}
	for _, se := range s.Events {
		l.Events = append(l.Events, se.toEvent(s.ID))
	}
	l.EventCount = len(l.Events)
	return l
}

func (s storedEvent) toEvent(logID string) Event {
	ts := time.Time(s.Timestamp)
	return Event{
		ID:          s.ID,
		LogID:       logID,
		Title:       s.Title,
		Description: s.Description,
		Timestamp:   ts,
		Tags:        analytics.NormalizeTags(s.Tags),
		CreatedAt:   ts,
	}
}

func fromLog(l Log) storedLog {
	s := storedLog{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Color:       l.Color,
		CreatedAt:   flexTime(l.CreatedAt),
		Events:      make([]storedEvent, 0, len(l.Events)),
	}
	for _, e := range l.Events {
		s.Events = append(s.Events, fromEvent(e))
	}
	return s
}

func fromEvent(e Event) storedEvent {
	return storedEvent{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Timestamp:   flexTime(e.Timestamp),
		Tags:        flexTags(analytics.NormalizeTags(e.Tags)),
	}
}

// jsonRepository implements Repository on the local-storage document. Logs
// are kept newest-first, each with its events embedded newest-first.
// Every mutation is one atomic rewrite of the file, so a log delete
// removes the log and its events together or not at all.
type jsonRepository struct {
	doc *database.Document
}

// NewJSONRepository creates a repository over doc.
func NewJSONRepository(doc *database.Document) Repository {
	return &jsonRepository{doc: doc}
}

func (r *jsonRepository) view() ([]storedLog, error) {
	var stored []storedLog
	if err := r.doc.View(DocumentSection, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *jsonRepository) update(fn func(stored *[]storedLog) error) error {
	var stored []storedLog
	return r.doc.Update(DocumentSection, &stored, func() error {
		return fn(&stored)
	})
}

func indexOfLog(stored []storedLog, id string) int {
	return slices.IndexFunc(stored, func(s storedLog) bool { return s.ID == id })
}

// CreateLog prepends the log.
func (r *jsonRepository) CreateLog(_ context.Context, l *Log) error {
	return r.update(func(stored *[]storedLog) error {
		*stored = slices.Insert(*stored, 0, fromLog(*l))
		return nil
	})
}

// FindLog returns a copy of a log with its events.
func (r *jsonRepository) FindLog(_ context.Context, id string) (*Log, error) {
	stored, err := r.view()
	if err != nil {
		return nil, err
	}
	i := indexOfLog(stored, id)
	if i < 0 {
		return nil, apperror.NewNotFound("log not found")
	}
	l := stored[i].toLog()
	return &l, nil
}

// ListLogs returns logs in document order with event counts.
func (r *jsonRepository) ListLogs(_ context.Context) ([]Log, error) {
	stored, err := r.view()
	if err != nil {
		return nil, err
	}
	logs := make([]Log, 0, len(stored))
	for _, s := range stored {
		l := s.toLog()
		l.Events = []Event{}
		logs = append(logs, l)
	}
	return logs, nil
}

// DeleteLog drops the log and its embedded events in one write.
func (r *jsonRepository) DeleteLog(_ context.Context, id string) error {
	return r.update(func(stored *[]storedLog) error {
		i := indexOfLog(*stored, id)
		if i < 0 {
			return apperror.NewNotFound("log not found")
		}
		*stored = slices.Delete(*stored, i, i+1)
		return nil
	})
}

// CreateEvent prepends the event to its log.
func (r *jsonRepository) CreateEvent(_ context.Context, e *Event) error {
	return r.update(func(stored *[]storedLog) error {
		i := indexOfLog(*stored, e.LogID)
		if i < 0 {
			return apperror.NewNotFound("log not found")
		}
		l := &(*stored)[i]
		l.Events = slices.Insert(l.Events, 0, fromEvent(*e))
		return nil
	})
}

// ListEvents returns a log's events. An unknown log yields an empty list.
func (r *jsonRepository) ListEvents(_ context.Context, logID string) ([]Event, error) {
	stored, err := r.view()
	if err != nil {
		return nil, err
	}
	i := indexOfLog(stored, logID)
	if i < 0 {
		return []Event{}, nil
	}
	return stored[i].toLog().Events, nil
}

// DeleteEvent removes one event if present.
func (r *jsonRepository) DeleteEvent(_ context.Context, logID, eventID string) error {
	return r.update(func(stored *[]storedLog) error {
		i := indexOfLog(*stored, logID)
		if i < 0 {
			return nil
		}
		l := &(*stored)[i]
		l.Events = slices.DeleteFunc(l.Events, func(e storedEvent) bool { return e.ID == eventID })
		return nil
	})
}

// ExportAll returns every log with events.
func (r *jsonRepository) ExportAll(_ context.Context) ([]Log, error) {
	stored, err := r.view()
	if err != nil {
		return nil, err
	}
	logs := make([]Log, 0, len(stored))
	for _, s := range stored {
		logs = append(logs, s.toLog())
	}
	return logs, nil
}

// Import adds logs not already present, each placed by CreatedAt so the
// list stays newest-first. An event id already in the document is a
// conflict and leaves the document untouched.
func (r *jsonRepository) Import(_ context.Context, logs []Log) (int, error) {
	imported := 0
	err := r.update(func(stored *[]storedLog) error {
		eventIDs := make(map[string]bool)
		for _, s := range *stored {
			for _, e := range s.Events {
				eventIDs[e.ID] = true
			}
		}

		for _, l := range logs {
			if indexOfLog(*stored, l.ID) >= 0 {
				continue
			}
			for _, e := range l.Events {
				if eventIDs[e.ID] {
					return eventConflict(e.ID)
				}
				eventIDs[e.ID] = true
			}
			at := slices.IndexFunc(*stored, func(s storedLog) bool { return listsAfter(s, l) })
			if at < 0 {
				at = len(*stored)
			}
			*stored = slices.Insert(*stored, at, fromLog(l))
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// listsAfter reports whether s sorts after l in the newest-first order the
// SQL backend uses: created_at descending, then id.
func listsAfter(s storedLog, l Log) bool {
	created := time.Time(s.CreatedAt)
	if !created.Equal(l.CreatedAt) {
		return created.Before(l.CreatedAt)
	}
	return s.ID > l.ID
}

// --- Local-storage document codec ---

// EncodeDocument writes logs as the bare local-storage array: ISO-8601
// dates, events embedded newest-first.
func EncodeDocument(w io.Writer, logs []Log) error {
	stored := make([]storedLog, 0, len(logs))
	for _, l := range logs {
		stored = append(stored, fromLog(l))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stored); err != nil {
		return fmt.Errorf("encoding logs document: %w", err)
	}
	return nil
}

// DecodeDocument reads a local-storage array. It also accepts the json
// backend's envelope object and reads its log section. Logs without an id
// or title are dropped; tags and dates are normalized.
func DecodeDocument(r io.Reader) ([]Log, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading logs document: %w", err)
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decoding logs document: %w", err)
		}
		data = envelope[DocumentSection]
		if len(data) == 0 {
			return []Log{}, nil
		}
	}

	var stored []storedLog
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decoding logs document: %w", err)
	}

	logs := make([]Log, 0, len(stored))
	for _, s := range stored {
		if s.ID == "" || s.Title == "" {
			continue
		}
		l := s.toLog()
		l.Events = slices.DeleteFunc(l.Events, func(e Event) bool { return e.ID == "" })
		l.EventCount = len(l.Events)
		logs = append(logs, l)
	}
	return logs, nil
}
