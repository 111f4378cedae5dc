package connection

import (
	"encoding/json"
	"fmt"
)

// Ack statuses.
const (
	AckOK    = "ok"
	AckError = "error"
)

// Ack is a bridge's answer to a command, on MQTT and NATS alike.
type Ack struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func decodeAck(payload []byte) (Ack, error) {
	var a Ack
	if err := json.Unmarshal(payload, &a); err != nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrBadAck, err)
	}
	if a.CommandID == "" || a.Status == "" {
		return Ack{}, fmt.Errorf("%w: command_id and status are required", ErrBadAck)
	}
	return a, nil
}

// err converts a decoded ack into the send result.
func (a Ack) err() error {
	if a.Status == AckOK {
		return nil
	}
	if a.Error != "" {
		return fmt.Errorf("%w: %s", ErrRejected, a.Error)
	}
	return ErrRejected
}
