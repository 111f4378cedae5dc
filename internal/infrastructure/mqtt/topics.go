package mqtt

import "fmt"

// Bridges own the flat remotelink/{category}/{device_id} topics; the core
// publishes beneath remotelink/core and remotelink/system.
const (
	rootTopic   = "remotelink"
	coreTopic   = rootTopic + "/core"
	systemTopic = rootTopic + "/system"
)

// Topics builds RemoteLink topic names.
//
//	mqtt.Topics{}.DeviceCommand("2") // "remotelink/command/2"
type Topics struct{}

// AllDiscoveryAnnouncements matches every bridge announcement
// (remotelink/discovery/{bridge_id}).
func (Topics) AllDiscoveryAnnouncements() string {
	return rootTopic + "/discovery/+"
}

// DiscoveryProbe is where the core asks bridges to re-announce.
func (Topics) DiscoveryProbe() string {
	return coreTopic + "/discovery-probe"
}

// DeviceCommand carries command envelopes for one device.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", rootTopic, deviceID)
}

// DeviceAck carries a bridge's acknowledgements for one device.
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", rootTopic, deviceID)
}

// CoreDeviceState holds the retained lifecycle snapshot of one device.
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", coreTopic, deviceID)
}

// SystemStatus holds the core's retained Presence.
func (Topics) SystemStatus() string {
	return systemTopic + "/status"
}
