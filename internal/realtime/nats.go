package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces Memz subjects on a shared NATS server.
const subjectPrefix = "memz.changes."

// flushTimeout bounds the round trip that confirms a subscription.
const flushTimeout = 5 * time.Second

// subjectEscaper replaces the characters NATS reserves in subject tokens.
var subjectEscaper = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_", "\n", "_")

// NATSBroker is a Broker backed by core NATS subjects.
type NATSBroker struct {
	conn *nats.Conn
}

// NewNATSBroker creates a broker on an existing connection.
func NewNATSBroker(conn *nats.Conn) *NATSBroker {
	return &NATSBroker{conn: conn}
}

// Subject maps a topic to its NATS subject.
func Subject(topic string) string {
	return subjectPrefix + subjectEscaper.Replace(topic)
}

// Publish sends a change signal on topic's subject.
func (b *NATSBroker) Publish(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Publish(Subject(topic), nil); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe flushes before returning so the server has registered the
// interest before the caller loads its first snapshot.
func (b *NATSBroker) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)

	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := b.conn.Subscribe(Subject(topic), func(*nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			signal(out)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if err := b.conn.FlushTimeout(flushTimeout); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && b.conn.IsConnected() {
			slog.Debug("closing nats subscription",
				slog.String("topic", topic),
				slog.Any("error", err),
			)
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}
