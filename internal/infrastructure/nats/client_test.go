package nats

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
)

const testServer = "127.0.0.1:4222"

func testConfig() config.NATSConfig {
	return config.NATSConfig{
		Enabled:       true,
		URL:           "nats://" + testServer,
		Name:          "remotelink-test",
		ReconnectWait: 1,
		MaxReconnects: 1,
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testServer, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no NATS server at %s: %v", testServer, err)
	}
	conn.Close()

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "nats://127.0.0.1:59998"

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if _, err := c.RequestWithContext(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RequestWithContext() error = %v, want ErrNotConnected", err)
	}
}

func TestRequestReply(t *testing.T) {
	client := connectOrSkip(t)

	sub, err := client.Conn().Subscribe("remotelink.command.test", func(m *natsgo.Msg) {
		_ = m.Respond([]byte(`{"status":"ok"}`))
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := client.RequestWithContext(ctx, "remotelink.command.test", []byte(`{}`))
	if err != nil {
		t.Fatalf("RequestWithContext() error = %v", err)
	}
	if string(msg.Data) != `{"status":"ok"}` {
		t.Errorf("reply = %s", msg.Data)
	}
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
