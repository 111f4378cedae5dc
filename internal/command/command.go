package command

import (
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/remotelink-core/internal/device"
)

// op is the operation name carried by validation errors from this package.
const op = "command"

// Command is a remote-control command. The set of implementations is closed:
// Power, Volume, Channel, Directional, Text, Voice and AppLaunch.
type Command interface {
	// Kind returns the capability the command exercises.
	Kind() device.Capability

	// Validate checks the command's shape for its kind.
	// Failures are always device.ErrValidation.
	Validate() error

	isCommand()
}

// Volume actions.
const (
	VolumeUp   = "up"
	VolumeDown = "down"
	VolumeMute = "mute"
)

// Channel actions.
const (
	ChannelUp     = "up"
	ChannelDown   = "down"
	ChannelGuide  = "guide"
	ChannelNumber = "number"
)

// Directions.
const (
	DirUp    = "up"
	DirDown  = "down"
	DirLeft  = "left"
	DirRight = "right"
	DirOK    = "ok"
)

var (
	volumeActions  = []string{VolumeUp, VolumeDown, VolumeMute}
	channelActions = []string{ChannelUp, ChannelDown, ChannelGuide, ChannelNumber}
	directions     = []string{DirUp, DirDown, DirLeft, DirRight, DirOK}
)

// Power toggles the device's power state.
type Power struct{}

// Volume adjusts or mutes the volume.
type Volume struct {
	Action string `json:"action"`
}

// Channel changes channel. Number must be set, and all digits, exactly
// when Action is "number".
type Channel struct {
	Action string  `json:"action"`
	Number *string `json:"number,omitempty"`
}

// Directional is a D-pad press.
type Directional struct {
	Direction string `json:"direction"`
}

// Text types a string into the focused input. Value must be present but
// may be empty.
type Text struct {
	Value *string `json:"text"`
}

// Voice sends a spoken-command transcript. Utterance must be non-empty.
type Voice struct {
	Utterance string `json:"command"`
}

// AppLaunch opens an application by ID or name.
type AppLaunch struct {
	AppID string `json:"appId"`
}

func (Power) Kind() device.Capability       { return device.CapPower }
func (Volume) Kind() device.Capability      { return device.CapVolume }
func (Channel) Kind() device.Capability     { return device.CapChannel }
func (Directional) Kind() device.Capability { return device.CapDirectional }
func (Text) Kind() device.Capability        { return device.CapText }
func (Voice) Kind() device.Capability       { return device.CapVoice }
func (AppLaunch) Kind() device.Capability   { return device.CapAppLaunch }

func (Power) isCommand()       {}
func (Volume) isCommand()      {}
func (Channel) isCommand()     {}
func (Directional) isCommand() {}
func (Text) isCommand()        {}
func (Voice) isCommand()       {}
func (AppLaunch) isCommand()   {}

// Validate always succeeds; power carries no parameters.
func (Power) Validate() error { return nil }

// Validate checks the action is one of up, down or mute.
func (v Volume) Validate() error {
	return oneOf("action", v.Action, volumeActions)
}

// Validate checks the action and the number/action pairing.
func (c Channel) Validate() error {
	if err := oneOf("action", c.Action, channelActions); err != nil {
		return err
	}
	if c.Action != ChannelNumber {
		if c.Number != nil {
			return device.NewValidationError(op, "number", "only allowed for action number")
		}
		return nil
	}
	if c.Number == nil || !isDigits(*c.Number) {
		return device.NewValidationError(op, "number", "digits required for action number")
	}
	return nil
}

// Validate checks the direction is a known D-pad key.
func (d Directional) Validate() error {
	return oneOf("direction", d.Direction, directions)
}

// Validate checks the text field is present.
func (t Text) Validate() error {
	if t.Value == nil {
		return device.NewValidationError(op, "text", "required")
	}
	return nil
}

// Validate checks the utterance is non-empty.
func (v Voice) Validate() error {
	if strings.TrimSpace(v.Utterance) == "" {
		return device.NewValidationError(op, "command", "required")
	}
	return nil
}

// Validate checks an app ID was given.
func (a AppLaunch) Validate() error {
	if strings.TrimSpace(a.AppID) == "" {
		return device.NewValidationError(op, "appId", "required")
	}
	return nil
}

func oneOf(field, value string, allowed []string) error {
	if value == "" {
		return device.NewValidationError(op, field, "required")
	}
	if !slices.Contains(allowed, value) {
		return device.NewValidationError(op, field, "must be one of: "+strings.Join(allowed, ", "))
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Envelope is a validated command addressed to one device, as handed to a
// transport.
type Envelope struct {
	ID       string            `json:"id"`
	DeviceID string            `json:"device_id"`
	Kind     device.Capability `json:"kind"`
	Params   Command           `json:"params"`
	IssuedAt time.Time         `json:"issued_at"`
}

// NewEnvelope wraps cmd for delivery.
func NewEnvelope(id, deviceID string, cmd Command, at time.Time) Envelope {
	return Envelope{
		ID:       id,
		DeviceID: deviceID,
		Kind:     cmd.Kind(),
		Params:   cmd,
		IssuedAt: at.UTC(),
	}
}
