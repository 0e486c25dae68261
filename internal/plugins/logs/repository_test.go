package logs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/database"
	"github.com/memzapp/memz/internal/realtime"
)

// repoFactories builds a fresh repository per backend so every test runs
// against both stores.
func repoFactories(t *testing.T) map[string]func() Repository {
	return map[string]func() Repository{
		"sqlite": func() Repository {
			db, err := database.NewSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			require.NoError(t, database.RunMigrations(db, database.DialectSQLite))
			return NewSQLRepository(db, database.DialectSQLite)
		},
		"json": func() Repository {
			doc, err := database.OpenDocument(filepath.Join(t.TempDir(), "memz.json"))
			require.NoError(t, err)
			return NewJSONRepository(doc)
		},
	}
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seedLog(t *testing.T, repo Repository, id string, offset time.Duration) *Log {
	t.Helper()
	l := &Log{ID: id, Title: "Log " + id, CreatedAt: baseTime.Add(offset), Events: []Event{}}
	require.NoError(t, repo.CreateLog(context.Background(), l))
	return l
}

func seedEvent(t *testing.T, repo Repository, logID, id string, tags ...string) *Event {
	t.Helper()
	e := &Event{
		ID:        id,
		LogID:     logID,
		Title:     "Event " + id,
		Timestamp: baseTime,
		CreatedAt: baseTime,
		Tags:      tags,
	}
	require.NoError(t, repo.CreateEvent(context.Background(), e))
	return e
}

func eventIDs(events []Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func TestRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()

			require.NoError(t, repo.CreateLog(ctx, &Log{
				ID: "trip", Title: "Trip", Description: "Summer", Color: "#a1b2c3",
				CreatedAt: baseTime, Events: []Event{},
			}))

			l, err := repo.FindLog(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, "Trip", l.Title)
			assert.Equal(t, "Summer", l.Description)
			assert.Equal(t, "#a1b2c3", l.Color)
			assert.True(t, baseTime.Equal(l.CreatedAt))
			assert.NotNil(t, l.Events)
			assert.Empty(t, l.Events)

			_, err = repo.FindLog(ctx, "ghost")
			assert.True(t, apperror.IsNotFound(err))
		})
	}
}

func TestRepository_ListLogsNewestFirst(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			seedLog(t, repo, "old", 0)
			seedLog(t, repo, "new", time.Hour)
			seedEvent(t, repo, "old", "e1")
			seedEvent(t, repo, "old", "e2")

			logs, err := repo.ListLogs(ctx)
			require.NoError(t, err)
			require.Len(t, logs, 2)
			assert.Equal(t, "new", logs[0].ID)
			assert.Equal(t, "old", logs[1].ID)
			assert.Equal(t, 0, logs[0].EventCount)
			assert.Equal(t, 2, logs[1].EventCount)
			assert.Empty(t, logs[1].Events, "list views don't load events")
		})
	}
}

func TestRepository_EventsNewestFirstWithTags(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			seedLog(t, repo, "trip", 0)
			seedEvent(t, repo, "trip", "first", "dinner", "party")
			seedEvent(t, repo, "trip", "second")
			seedEvent(t, repo, "trip", "third", "beach")

			l, err := repo.FindLog(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, []string{"third", "second", "first"}, eventIDs(l.Events))
			assert.Equal(t, 3, l.EventCount)
			assert.Equal(t, []string{"beach"}, l.Events[0].Tags)
			assert.Equal(t, []string{}, l.Events[1].Tags)
			assert.Equal(t, []string{"dinner", "party"}, l.Events[2].Tags)
			assert.Equal(t, "trip", l.Events[2].LogID)
			assert.True(t, baseTime.Equal(l.Events[2].Timestamp))

			events, err := repo.ListEvents(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, eventIDs(l.Events), eventIDs(events))

			events, err = repo.ListEvents(ctx, "ghost")
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestRepository_CreateEventUnknownLog(t *testing.T) {
	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()

			err := repo.CreateEvent(context.Background(), &Event{
				ID: "e1", LogID: "ghost", Title: "Dinner", Timestamp: baseTime, CreatedAt: baseTime,
			})
			assert.True(t, apperror.IsNotFound(err))
		})
	}
}

func TestRepository_DeleteLogCascades(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			seedLog(t, repo, "trip", 0)
			seedLog(t, repo, "work", time.Hour)
			seedEvent(t, repo, "trip", "e1", "dinner")
			seedEvent(t, repo, "trip", "e2", "beach")
			seedEvent(t, repo, "work", "e3", "meeting")

			require.NoError(t, repo.DeleteLog(ctx, "trip"))

			_, err := repo.FindLog(ctx, "trip")
			assert.True(t, apperror.IsNotFound(err))
			events, err := repo.ListEvents(ctx, "trip")
			require.NoError(t, err)
			assert.Empty(t, events)

			work, err := repo.FindLog(ctx, "work")
			require.NoError(t, err)
			assert.Equal(t, []string{"e3"}, eventIDs(work.Events))
			assert.Equal(t, []string{"meeting"}, work.Events[0].Tags)

			// The same ids can be reused once the log and its events are gone.
			seedLog(t, repo, "trip", 0)
			seedEvent(t, repo, "trip", "e1", "dinner")

			assert.True(t, apperror.IsNotFound(repo.DeleteLog(ctx, "ghost")))
		})
	}
}

func TestRepository_DeleteEvent(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			seedLog(t, repo, "trip", 0)
			seedEvent(t, repo, "trip", "e1", "dinner")
			seedEvent(t, repo, "trip", "e2")

			require.NoError(t, repo.DeleteEvent(ctx, "trip", "e1"))
			events, err := repo.ListEvents(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, []string{"e2"}, eventIDs(events))

			// Deleting again, or from the wrong log, is a no-op.
			assert.NoError(t, repo.DeleteEvent(ctx, "trip", "e1"))
			assert.NoError(t, repo.DeleteEvent(ctx, "ghost", "e2"))

			events, err = repo.ListEvents(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, []string{"e2"}, eventIDs(events))
		})
	}
}

func TestRepository_ExportImport(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			source := newRepo()
			seedLog(t, source, "trip", 0)
			seedLog(t, source, "work", time.Hour)
			seedEvent(t, source, "trip", "e1", "dinner", "party")
			seedEvent(t, source, "trip", "e2", "beach")

			exported, err := source.ExportAll(ctx)
			require.NoError(t, err)
			require.Len(t, exported, 2)
			assert.Equal(t, "work", exported[0].ID)
			assert.Equal(t, []string{"e2", "e1"}, eventIDs(exported[1].Events))

			target := newRepo()
			seedLog(t, target, "work", 2*time.Hour)

			n, err := target.Import(ctx, exported)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "existing ids are skipped")

			trip, err := target.FindLog(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, []string{"e2", "e1"}, eventIDs(trip.Events))
			assert.Equal(t, []string{"dinner", "party"}, trip.Events[1].Tags)

			n, err = target.Import(ctx, exported)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRepository_ImportEventConflict(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			seedLog(t, repo, "trip", 0)
			seedEvent(t, repo, "trip", "e1", "dinner")

			n, err := repo.Import(ctx, []Log{
				{ID: "fresh", Title: "Fresh", CreatedAt: baseTime, Events: []Event{}},
				{ID: "other", Title: "Other", CreatedAt: baseTime, Events: []Event{
					{ID: "e1", Title: "Copy", Timestamp: baseTime, CreatedAt: baseTime},
				}},
			})
			assert.Zero(t, n)
			appErr, ok := apperror.As(err)
			require.True(t, ok, "expected AppError, got %v", err)
			assert.Equal(t, 409, appErr.Code)

			// Nothing from the rejected document is kept.
			for _, id := range []string{"fresh", "other"} {
				_, err := repo.FindLog(ctx, id)
				assert.True(t, apperror.IsNotFound(err), id)
			}
			trip, err := repo.FindLog(ctx, "trip")
			require.NoError(t, err)
			assert.Equal(t, []string{"e1"}, eventIDs(trip.Events))
		})
	}
}

func TestRepository_ImportKeepsNewestFirst(t *testing.T) {
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			seedLog(t, repo, "mid", time.Hour)

			n, err := repo.Import(ctx, []Log{
				{ID: "old", Title: "Old", CreatedAt: baseTime, Events: []Event{}},
				{ID: "new", Title: "New", CreatedAt: baseTime.Add(2 * time.Hour), Events: []Event{}},
			})
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			logs, err := repo.ListLogs(ctx)
			require.NoError(t, err)
			ids := make([]string, len(logs))
			for i, l := range logs {
				ids[i] = l.ID
			}
			assert.Equal(t, []string{"new", "mid", "old"}, ids)
		})
	}
}

func TestLogService_ImportCleansDocument(t *testing.T) {
	const doc = `[
	  {"id": "L1", "title": "Trip", "createdAt": "2024-06-01T10:00:00Z", "events": [
	    {"id": "E1", "title": "", "timestamp": "2024-06-01T10:00:00Z", "tags": []},
	    {"id": "E1", "title": "dup", "timestamp": "2024-06-01T11:00:00Z", "tags": ["x"]}
	  ]},
	  {"id": "L2", "title": "Work", "createdAt": "2024-06-02T10:00:00Z", "events": []}
	]`
	ctx := context.Background()

	for name, newRepo := range repoFactories(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo()
			svc := NewLogService(repo, realtime.NewHub(), nil)

			logs, err := DecodeDocument(strings.NewReader(doc))
			require.NoError(t, err)
			n, err := svc.Import(ctx, logs)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			events, err := svc.ListEvents(ctx, "L1")
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "dup", events[0].Title)

			require.NoError(t, svc.DeleteEvent(ctx, "L1", "E1"))
			events, err = svc.ListEvents(ctx, "L1")
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}
