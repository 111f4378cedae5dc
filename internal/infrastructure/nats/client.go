package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
)

// Sentinel errors for NATS operations.
var (
	ErrDisabled         = errors.New("nats: disabled in configuration")
	ErrConnectionFailed = errors.New("nats: connection failed")
	ErrNotConnected     = errors.New("nats: not connected")
)

const defaultReconnectWait = 2 * time.Second

// Client wraps a NATS connection used for request/reply command delivery
// to device bridges.
//
// Thread Safety:
//   - All methods are safe for concurrent use; *nats.Conn is goroutine safe.
type Client struct {
	conn *natsgo.Conn
	cfg  config.NATSConfig
}

// Connect dials the configured server. It returns ErrDisabled when
// cfg.Enabled is false.
func Connect(cfg config.NATSConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	wait := time.Duration(cfg.ReconnectWait) * time.Second
	if wait <= 0 {
		wait = defaultReconnectWait
	}

	opts := []natsgo.Option{
		natsgo.ReconnectWait(wait),
		natsgo.MaxReconnects(cfg.MaxReconnects),
	}
	if cfg.Name != "" {
		opts = append(opts, natsgo.Name(cfg.Name))
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{conn: conn, cfg: cfg}, nil
}

// RequestWithContext sends data on subject and waits for a single reply.
func (c *Client) RequestWithContext(ctx context.Context, subject string, data []byte) (*natsgo.Msg, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.conn.RequestWithContext(ctx, subject, data)
}

// Conn returns the underlying connection for subscribers.
func (c *Client) Conn() *natsgo.Conn {
	return c.conn
}

// IsConnected reports the connection status.
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// HealthCheck returns ErrNotConnected when the link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nats health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close drains pending replies and closes the connection. It is nil-safe.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
