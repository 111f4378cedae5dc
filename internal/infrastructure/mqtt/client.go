package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	keepAlive      = 60 * time.Second
	quiesceMillis  = 1000
)

// Logger is the subset of logging.Logger used for handler failures.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. Handlers run on paho's delivery
// goroutines and should return quickly; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Client is the core's connection to the bridge bus.
//
// It keeps a route table of active subscriptions and replays it after
// every reconnect, and it maintains a retained Presence on
// remotelink/system/status with a Last Will for unclean exits. All methods
// are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte

	mu     sync.RWMutex
	online bool
	routes map[string]route
	onUp   func()
	onDown func(error)
	logger Logger
}

type route struct {
	qos     byte
	handler MessageHandler
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS),
		routes:   make(map[string]route),
	}
}

// Connect dials the broker described by cfg and waits for the first
// session. Later drops are retried by paho with backoff.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)
	c.paho = pahomqtt.NewClient(c.options(cfg))

	if err := await(c.paho.Connect(), connectTimeout, ErrConnect); err != nil {
		return nil, err
	}
	// The connect handler fires asynchronously.
	c.setOnline(true)
	return c, nil
}

func (c *Client) options(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(scheme + "://" + net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetBinaryWill(Topics{}.SystemStatus(), presence(cfg.Broker.ClientID, presenceOffline, reasonLost), 1, true).
		SetOnConnectHandler(func(pahomqtt.Client) { c.up() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.down(err) })

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// up runs on the first connect and every reconnect.
func (c *Client) up() {
	c.mu.Lock()
	c.online = true
	routes := make(map[string]route, len(c.routes))
	for topic, r := range c.routes {
		routes[topic] = r
	}
	callback := c.onUp
	c.mu.Unlock()

	// Replay failures resurface through the next lost-connection callback.
	for topic, r := range routes {
		c.paho.Subscribe(topic, r.qos, c.adapt(r.handler))
	}
	c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, presence(c.clientID, presenceOnline, ""))

	if callback != nil {
		callback()
	}
}

func (c *Client) down(err error) {
	c.mu.Lock()
	c.online = false
	callback := c.onDown
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
}

// Close replaces the retained Presence with a graceful offline document
// and disconnects. Closing a nil or never connected client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		payload := presence(c.clientID, presenceOffline, reasonShutdown)
		c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, payload).WaitTimeout(ackTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.setOnline(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	online := c.online
	c.mu.RUnlock()
	return online && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect sets a callback for the initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onUp = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback for a lost connection.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDown = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}
