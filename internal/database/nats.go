package database

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/memzapp/memz/internal/config"
)

// NewNATS connects to the configured NATS server. The client reconnects on
// its own once connected.
func NewNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("memz"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return conn, nil
}
