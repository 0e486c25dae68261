package logs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memzapp/memz/internal/analytics"
	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/realtime"
	"github.com/memzapp/memz/internal/sanitize"
)

// LogService handles business logic for logs and events: validation, tag
// normalization, id generation and change notification. Mutations return
// once the store has accepted them; other viewers learn about them through
// the Feed.
type LogService interface {
	// Logs
	CreateLog(ctx context.Context, input CreateLogInput) (*Log, error)
	GetLog(ctx context.Context, id string) (*Log, error)
	ListLogs(ctx context.Context) ([]Log, error)
	DeleteLog(ctx context.Context, id string) error

	// Events
	CreateEvent(ctx context.Context, logID string, input CreateEventInput) (*Event, error)
	ListEvents(ctx context.Context, logID string) ([]Event, error)
	DeleteEvent(ctx context.Context, logID, eventID string) error

	// Stats computes tag analytics for one log, with co-occurrence for query
	// when it is non-empty.
	Stats(ctx context.Context, logID, query string) (*Stats, error)

	// Bulk transfer in the local-storage document shape.
	Export(ctx context.Context) ([]Log, error)
	Import(ctx context.Context, logs []Log) (int, error)
}

// Stats is the analytics view of one log.
type Stats struct {
	Log     *Log              `json:"log"`
	Summary analytics.Summary `json:"summary"`

	// Matching holds the events carrying the query tag, newest-first.
	Matching []Event `json:"matching"`
}

// MutationRecorder observes store writes. Wired to Prometheus in
// production; nil disables recording.
type MutationRecorder interface {
	RecordMutation(op string, err error)
}

// logService implements LogService.
type logService struct {
	repo     Repository
	broker   realtime.Broker
	recorder MutationRecorder
	now      func() time.Time
}

// NewLogService creates a log service. broker receives a signal after each
// successful mutation; recorder may be nil.
func NewLogService(repo Repository, broker realtime.Broker, recorder MutationRecorder) LogService {
	return &logService{
		repo:     repo,
		broker:   broker,
		recorder: recorder,
		now:      time.Now,
	}
}

// --- Logs ---

// CreateLog validates input and stores a new, empty log.
func (s *logService) CreateLog(ctx context.Context, input CreateLogInput) (*Log, error) {
	title := sanitize.Line(input.Title)
	if title == "" {
		return nil, apperror.NewValidation("Log title is required.")
	}
	if len(title) > maxTitleLength {
		return nil, apperror.NewValidation(fmt.Sprintf("Log title must be at most %d characters.", maxTitleLength))
	}

	color := strings.TrimSpace(input.Color)
	if color != "" && !colorPattern.MatchString(color) {
		return nil, apperror.NewValidation("Color must look like #a1b2c3.")
	}

	l := &Log{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(sanitize.Text(input.Description)),
		Color:       strings.ToLower(color),
		CreatedAt:   storeTime(s.now()),
		Events:      []Event{},
	}

	err := s.repo.CreateLog(ctx, l)
	s.record("create_log", err)
	if err != nil {
		return nil, storeError(err)
	}

	slog.Info("log created", slog.String("log_id", l.ID))
	s.publish(ctx, l.ID)
	return l, nil
}

// GetLog returns a log with its events.
func (s *logService) GetLog(ctx context.Context, id string) (*Log, error) {
	l, err := s.repo.FindLog(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return l, nil
}

// ListLogs returns every log, newest first, without events.
func (s *logService) ListLogs(ctx context.Context) ([]Log, error) {
	logs, err := s.repo.ListLogs(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return logs, nil
}

// DeleteLog removes a log and all of its events. A partial failure in the
// store comes back as a store failure, never as success.
func (s *logService) DeleteLog(ctx context.Context, id string) error {
	err := s.repo.DeleteLog(ctx, id)
	s.record("delete_log", err)
	if err != nil {
		if errors.Is(err, ErrPartialDelete) {
			slog.Error("log delete incomplete",
				slog.String("log_id", id),
				slog.Any("error", err),
			)
			return apperror.NewStoreFailure("The log could not be fully deleted. Please try again.", err)
		}
		return storeError(err)
	}

	slog.Info("log deleted", slog.String("log_id", id))
	s.publish(ctx, id)
	return nil
}

// --- Events ---

// CreateEvent validates input and prepends a new event to the log.
func (s *logService) CreateEvent(ctx context.Context, logID string, input CreateEventInput) (*Event, error) {
	title := sanitize.Line(input.Title)
	if title == "" {
		return nil, apperror.NewValidation("Event title is required.")
	}
	if len(title) > maxTitleLength {
		return nil, apperror.NewValidation(fmt.Sprintf("Event title must be at most %d characters.", maxTitleLength))
	}

	tags, err := cleanTags(input.Tags)
	if err != nil {
		return nil, err
	}

	now := storeTime(s.now())
	ts := now
	if !input.Date.IsZero() {
		ts = storeTime(input.Date)
	}

	e := &Event{
		ID:          uuid.NewString(),
		LogID:       logID,
		Title:       title,
		Description: strings.TrimSpace(sanitize.Text(input.Description)),
		Timestamp:   ts,
		Tags:        tags,
		CreatedAt:   now,
	}

	err = s.repo.CreateEvent(ctx, e)
	s.record("create_event", err)
	if err != nil {
		return nil, storeError(err)
	}

	slog.Debug("event created",
		slog.String("log_id", logID),
		slog.String("event_id", e.ID),
		slog.Int("tags", len(tags)),
	)
	s.publish(ctx, logID)
	return e, nil
}

// ListEvents returns a log's events newest-first. Fails with not-found for
// an unknown log.
func (s *logService) ListEvents(ctx context.Context, logID string) ([]Event, error) {
	l, err := s.repo.FindLog(ctx, logID)
	if err != nil {
		return nil, storeError(err)
	}
	return l.Events, nil
}

// DeleteEvent removes one event. Deleting an event that is already gone
// succeeds.
func (s *logService) DeleteEvent(ctx context.Context, logID, eventID string) error {
	err := s.repo.DeleteEvent(ctx, logID, eventID)
	s.record("delete_event", err)
	if err != nil {
		return storeError(err)
	}
	s.publish(ctx, logID)
	return nil
}

// --- Stats ---

// Stats loads the log and runs the tag analytics over its events.
func (s *logService) Stats(ctx context.Context, logID, query string) (*Stats, error) {
	l, err := s.repo.FindLog(ctx, logID)
	if err != nil {
		return nil, storeError(err)
	}
	return ComputeStats(l, query), nil
}

// ComputeStats runs the tag analytics over a loaded log.
func ComputeStats(l *Log, query string) *Stats {
	summary := analytics.Summarize(l.TagSets(), query)
	matching := make([]Event, 0, len(summary.Matches))
	for _, i := range summary.Matches {
		matching = append(matching, l.Events[i])
	}
	return &Stats{Log: l, Summary: summary, Matching: matching}
}

// --- Bulk ---

// Export returns every log with events.
func (s *logService) Export(ctx context.Context) ([]Log, error) {
	logs, err := s.repo.ExportAll(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return logs, nil
}

// Import stores logs from a document, skipping ids that already exist.
// Titles, descriptions and tags get the same cleaning and limits as
// CreateLog and CreateEvent. Logs or events missing an id or title are
// dropped, as are repeated ids after their first occurrence. An event id
// already used by a stored log is a conflict and nothing is imported.
func (s *logService) Import(ctx context.Context, logs []Log) (int, error) {
	clean := make([]Log, 0, len(logs))
	seenLogs := make(map[string]bool, len(logs))
	seenEvents := make(map[string]bool)
	dropped := 0

	for _, l := range logs {
		l.ID = strings.TrimSpace(l.ID)
		l.Title = sanitize.Line(l.Title)
		if l.ID == "" || l.Title == "" || seenLogs[l.ID] {
			dropped++
			continue
		}
		seenLogs[l.ID] = true
		if len(l.Title) > maxTitleLength {
			return 0, apperror.NewValidation(fmt.Sprintf("Log %q: title must be at most %d characters.", l.ID, maxTitleLength))
		}
		l.Description = strings.TrimSpace(sanitize.Text(l.Description))
		l.Color = strings.ToLower(strings.TrimSpace(l.Color))
		if l.Color != "" && !colorPattern.MatchString(l.Color) {
			l.Color = ""
		}
		l.CreatedAt = storeTime(l.CreatedAt)

		events := make([]Event, 0, len(l.Events))
		for _, e := range l.Events {
			e.ID = strings.TrimSpace(e.ID)
			e.Title = sanitize.Line(e.Title)
			if e.ID == "" || e.Title == "" || seenEvents[e.ID] {
				dropped++
				continue
			}
			seenEvents[e.ID] = true
			if len(e.Title) > maxTitleLength {
				return 0, apperror.NewValidation(fmt.Sprintf("Event %q: title must be at most %d characters.", e.ID, maxTitleLength))
			}
			tags, err := cleanTags(e.Tags)
			if err != nil {
				return 0, apperror.NewValidation(fmt.Sprintf("Event %q: %s", e.ID, apperror.SafeMessage(err)))
			}
			e.Tags = tags
			e.LogID = l.ID
			e.Description = strings.TrimSpace(sanitize.Text(e.Description))
			e.Timestamp = storeTime(e.Timestamp)
			if e.CreatedAt.IsZero() {
				e.CreatedAt = e.Timestamp
			}
			e.CreatedAt = storeTime(e.CreatedAt)
			events = append(events, e)
		}
		l.Events = events
		l.EventCount = len(events)
		clean = append(clean, l)
	}
	if dropped > 0 {
		slog.Warn("import dropped invalid or repeated entries", slog.Int("count", dropped))
	}

	n, err := s.repo.Import(ctx, clean)
	s.record("import", err)
	if err != nil {
		return 0, storeError(err)
	}
	if n > 0 {
		slog.Info("logs imported", slog.Int("count", n))
		s.publish(ctx, "")
	}
	return n, nil
}

// --- Helpers ---

// cleanTags sanitizes and normalizes raw tags and enforces the length limit.
func cleanTags(raw []string) ([]string, error) {
	lines := make([]string, len(raw))
	for i, t := range raw {
		lines[i] = sanitize.Line(t)
	}
	tags := analytics.NormalizeTags(lines)
	for _, t := range tags {
		if len(t) > maxTagLength {
			return nil, apperror.NewValidation(fmt.Sprintf("Tags must be at most %d characters.", maxTagLength))
		}
	}
	return tags, nil
}

// publish signals the list topic and, when logID is set, the log's own
// topic. The write already succeeded, so a broker failure is only logged.
func (s *logService) publish(ctx context.Context, logID string) {
	if s.broker == nil {
		return
	}
	topics := []string{topicLogs}
	if logID != "" {
		topics = append(topics, logTopic(logID))
	}
	for _, topic := range topics {
		if err := s.broker.Publish(ctx, topic); err != nil {
			slog.Warn("publishing change notification",
				slog.String("topic", topic),
				slog.Any("error", err),
			)
		}
	}
}

func (s *logService) record(op string, err error) {
	if s.recorder != nil {
		s.recorder.RecordMutation(op, err)
	}
}

// storeError passes AppErrors through and wraps anything else as internal.
func storeError(err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.NewInternal(err)
}
