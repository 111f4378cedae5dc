package command

import (
	"bytes"
	"encoding/json"

	"github.com/nerrad567/remotelink-core/internal/device"
)

// Kind names accepted by Decode, matching the /control/{kind} routes.
// "app" is the route name for app-launch.
var kindAliases = map[string]device.Capability{
	"power":       device.CapPower,
	"volume":      device.CapVolume,
	"channel":     device.CapChannel,
	"directional": device.CapDirectional,
	"text":        device.CapText,
	"voice":       device.CapVoice,
	"app":         device.CapAppLaunch,
	"app-launch":  device.CapAppLaunch,
}

// ParseKind resolves a route or wire kind name to a capability.
func ParseKind(kind string) (device.Capability, bool) {
	c, ok := kindAliases[kind]
	return c, ok
}

// wireBody is the union of every command's JSON fields. Raw messages let
// Decode tell an absent field from an empty one and accept a channel
// number sent either as a string or a JSON number.
type wireBody struct {
	Action    string          `json:"action"`
	Number    json.RawMessage `json:"number"`
	Direction string          `json:"direction"`
	Text      json.RawMessage `json:"text"`
	Command   string          `json:"command"`
	AppID     string          `json:"appId"`
}

// Decode builds a validated Command of the given kind from a JSON body.
// Unknown fields (including deviceId) are ignored.
func Decode(kind string, body []byte) (Command, error) {
	c, ok := ParseKind(kind)
	if !ok {
		return nil, device.NewValidationError(op, "kind", "unknown command kind "+kind)
	}

	var w wireBody
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, device.NewValidationError(op, "body", "invalid JSON")
		}
	}

	var cmd Command
	switch c {
	case device.CapPower:
		cmd = Power{}
	case device.CapVolume:
		cmd = Volume{Action: w.Action}
	case device.CapChannel:
		num, err := rawDigits(w.Number)
		if err != nil {
			return nil, err
		}
		cmd = Channel{Action: w.Action, Number: num}
	case device.CapDirectional:
		cmd = Directional{Direction: w.Direction}
	case device.CapText:
		text, err := rawString("text", w.Text)
		if err != nil {
			return nil, err
		}
		cmd = Text{Value: text}
	case device.CapVoice:
		cmd = Voice{Utterance: w.Command}
	case device.CapAppLaunch:
		cmd = AppLaunch{AppID: w.AppID}
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// rawString decodes an optional JSON string; absent or null yields nil.
func rawString(field string, raw json.RawMessage) (*string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, device.NewValidationError(op, field, "must be a string")
	}
	return &s, nil
}

// rawDigits decodes a channel number given as "42" or 42.
// Shape checks beyond that are left to Channel.Validate.
func rawDigits(raw json.RawMessage) (*string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		return rawString("number", raw)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, device.NewValidationError(op, "number", "must be a string of digits")
	}
	s := n.String()
	return &s, nil
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
