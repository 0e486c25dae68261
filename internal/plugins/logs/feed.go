package logs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/realtime"
)

// Feed re-publishes store changes as full snapshots. A watcher gets the
// current snapshot on subscribe and a freshly loaded one after every change
// notification, never a delta. Delivery is latest-wins: a slow reader sees
// the newest snapshot, not a backlog. Cancelling the context releases the
// broker subscription and closes the channel.
type Feed struct {
	repo   Repository
	broker realtime.Broker
}

// NewFeed creates a feed reading from repo and listening on broker.
func NewFeed(repo Repository, broker realtime.Broker) *Feed {
	return &Feed{repo: repo, broker: broker}
}

// WatchLogs streams the log list.
func (f *Feed) WatchLogs(ctx context.Context) (<-chan []Log, error) {
	return watch(ctx, f.broker, topicLogs, func(ctx context.Context) ([]Log, bool, error) {
		logs, err := f.repo.ListLogs(ctx)
		return logs, false, err
	})
}

// WatchLog streams one log with its events. Fails with not-found if the log
// doesn't exist. If the log is deleted later, a final snapshot with Deleted
// set is sent and the channel closes.
func (f *Feed) WatchLog(ctx context.Context, logID string) (<-chan LogSnapshot, error) {
	initial := true
	return watch(ctx, f.broker, logTopic(logID), func(ctx context.Context) (LogSnapshot, bool, error) {
		defer func() { initial = false }()

		l, err := f.repo.FindLog(ctx, logID)
		if err != nil {
			if !initial && apperror.IsNotFound(err) {
				return LogSnapshot{Deleted: true}, true, nil
			}
			return LogSnapshot{}, false, err
		}
		return LogSnapshot{Log: l}, false, nil
	})
}

// watch subscribes before the first load so no change between the two is
// missed. load returns the snapshot and whether it is the last one.
func watch[T any](
	ctx context.Context,
	broker realtime.Broker,
	topic string,
	load func(ctx context.Context) (T, bool, error),
) (<-chan T, error) {
	ctx, cancel := context.WithCancel(ctx)

	signals, err := broker.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	first, _, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan T, 1)
	out <- first

	go func() {
		defer cancel()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				snap, done, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					slog.Warn("reloading feed snapshot",
						slog.String("topic", topic),
						slog.Any("error", err),
					)
					continue
				}
				replace(out, snap)
				if done {
					return
				}
			}
		}
	}()

	return out, nil
}

// replace puts v on a one-slot channel, discarding an unread older value.
// Only the feed goroutine sends on out, so the slot is free after the drain.
func replace[T any](out chan T, v T) {
	select {
	case out <- v:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- v
}
