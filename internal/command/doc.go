// Package command defines the closed set of remote-control commands a
// device accepts and their shape validation.
//
// Every command is one of Power, Volume, Channel, Directional, Text, Voice
// or AppLaunch. Validate never coerces: a malformed command is always a
// device.ErrValidation carrying the offending field.
//
//	cmd, err := command.Decode("channel", []byte(`{"action":"number","number":"42"}`))
//	if err != nil {
//	    return err // device.ErrValidation
//	}
//	env := command.NewEnvelope(uuid.NewString(), deviceID, cmd, time.Now())
package command
