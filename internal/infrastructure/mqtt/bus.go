package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// ackTimeout bounds each broker round trip (PUBACK, SUBACK, UNSUBACK).
	ackTimeout = 5 * time.Second

	maxPayload = 1 << 20
)

// Publish sends payload on topic. Only state topics are retained; command
// envelopes never are.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublish, len(payload), maxPayload)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), ackTimeout, ErrPublish)
}

// Subscribe routes messages matching topic (which may use + and #) to
// handler. The route survives reconnects until Unsubscribe.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribe, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Subscribe(topic, qos, c.adapt(handler)), ackTimeout, ErrSubscribe); err != nil {
		return err
	}
	c.mu.Lock()
	c.routes[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops the route for topic. The route is forgotten even when
// the broker cannot be told, so it is not replayed after a reconnect.
func (c *Client) Unsubscribe(topic string) error {
	if err := checkTopic(topic, 0); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.routes, topic)
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Unsubscribe(topic), ackTimeout, ErrUnsubscribe)
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrBadTopic
	}
	if qos > 2 {
		return ErrBadQoS
	}
	return nil
}

// await waits for a paho token and wraps any failure in op.
func await(t pahomqtt.Token, timeout time.Duration, op error) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no broker response within %v", op, timeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}

func (c *Client) adapt(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.invoke(handler, msg.Topic(), msg.Payload())
	}
}

// invoke runs handler, logging its error or a recovered panic.
func (c *Client) invoke(handler MessageHandler, topic string, payload []byte) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("mqtt handler panicked", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil && logger != nil {
		logger.Warn("mqtt handler failed", "topic", topic, "error", err)
	}
}
