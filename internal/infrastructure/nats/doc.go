// Package nats connects RemoteLink Core to a NATS server for request/reply
// command delivery. Bridges answer requests on remotelink.command.{device_id}.
package nats
