// Package dispatch delivers remote-control commands to paired televisions.
//
// Dispatch validates the command, takes the device lock, makes sure the
// device is connected (opening a link through the connection supervisor
// if needed), sends the command under a fixed timeout and records it as
// the device's last command. Validation failures are never coerced into a
// valid command.
package dispatch
