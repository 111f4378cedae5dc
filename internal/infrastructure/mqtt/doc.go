// Package mqtt connects RemoteLink Core to device bridges over MQTT.
//
// A bridge is a small process on the home network that can reach the
// televisions directly. The topic layout:
//
//	bridge → remotelink/discovery/{bridge_id}   announcement (JSON device)
//	core   → remotelink/core/discovery-probe    scan probe
//	core   → remotelink/command/{device_id}     command envelope
//	bridge → remotelink/ack/{device_id}         {command_id, status, error}
//	core   → remotelink/core/device/{id}/state  retained lifecycle state
//	core   → remotelink/system/status           retained Presence
//
// Discovery, the MQTT transport and the lifecycle relay each depend on a
// narrow interface that *Client satisfies.
package mqtt
