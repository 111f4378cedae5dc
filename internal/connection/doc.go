// Package connection supervises the control links to paired televisions.
//
// A Supervisor opens a Link through the configured Transport the first
// time a paired device is used, moves the device to connected, and keeps
// the Handle until the device is disconnected, unpaired or found offline.
//
// Three transports are provided:
//   - SimulatedTransport: accepts every command after a per-kind delay
//   - MQTTTransport: publishes to remotelink/command/{id} and waits for an
//     ack on remotelink/ack/{id}
//   - NATSTransport: request/reply on remotelink.command.{id}
//
// Usage:
//
//	sup := connection.NewSupervisor(registry, connection.NewSimulatedTransport(1))
//	err := sup.Exec(ctx, id, func(ctx context.Context, h *connection.Handle, d *device.Device) error {
//	    return h.Send(ctx, env)
//	})
package connection
