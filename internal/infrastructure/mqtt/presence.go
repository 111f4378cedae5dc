package mqtt

import (
	"encoding/json"
	"time"
)

// Presence is the retained document on remotelink/system/status. Bridges
// watch it to learn whether the core is reachable.
type Presence struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	presenceOnline  = "online"
	presenceOffline = "offline"

	reasonLost     = "unexpected_disconnect"
	reasonShutdown = "graceful_shutdown"
)

// presence encodes the status document for clientID.
func presence(clientID, status, reason string) []byte {
	b, err := json.Marshal(Presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return nil
	}
	return b
}
