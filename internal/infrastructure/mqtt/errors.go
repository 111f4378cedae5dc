package mqtt

import "errors"

// Sentinel errors. Broker failures wrap one of these with the paho cause,
// so callers match on the operation with errors.Is.
var (
	ErrNotConnected = errors.New("mqtt: not connected to broker")
	ErrConnect      = errors.New("mqtt: connect failed")
	ErrPublish      = errors.New("mqtt: publish failed")
	ErrSubscribe    = errors.New("mqtt: subscribe failed")
	ErrUnsubscribe  = errors.New("mqtt: unsubscribe failed")
	ErrBadTopic     = errors.New("mqtt: topic is empty")
	ErrBadQoS       = errors.New("mqtt: qos must be 0, 1 or 2")
)
