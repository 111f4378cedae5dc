package command

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/remotelink-core/internal/device"
)

func strPtr(s string) *string { return &s }

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var de *device.Error
	if !errors.As(err, &de) {
		t.Fatalf("error %v is not a *device.Error", err)
	}
	return de.Field
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		cmd       Command
		wantField string // empty means valid
	}{
		{"power", Power{}, ""},
		{"volume up", Volume{Action: VolumeUp}, ""},
		{"volume mute", Volume{Action: VolumeMute}, ""},
		{"volume missing", Volume{}, "action"},
		{"volume bogus", Volume{Action: "louder"}, "action"},
		{"channel guide", Channel{Action: ChannelGuide}, ""},
		{"channel number", Channel{Action: ChannelNumber, Number: strPtr("042")}, ""},
		{"channel number missing", Channel{Action: ChannelNumber}, "number"},
		{"channel number empty", Channel{Action: ChannelNumber, Number: strPtr("")}, "number"},
		{"channel number letters", Channel{Action: ChannelNumber, Number: strPtr("4a")}, "number"},
		{"channel number negative", Channel{Action: ChannelNumber, Number: strPtr("-4")}, "number"},
		{"channel bad action", Channel{Action: "skip"}, "action"},
		{"channel up with number", Channel{Action: ChannelUp, Number: strPtr("7")}, "number"},
		{"directional ok", Directional{Direction: DirOK}, ""},
		{"directional bogus", Directional{Direction: "diagonal"}, "direction"},
		{"text empty allowed", Text{Value: strPtr("")}, ""},
		{"text missing", Text{}, "text"},
		{"voice", Voice{Utterance: "open netflix"}, ""},
		{"voice empty", Voice{Utterance: ""}, "command"},
		{"voice blank", Voice{Utterance: "   "}, "command"},
		{"app", AppLaunch{AppID: "com.netflix.ninja"}, ""},
		{"app missing", AppLaunch{}, "appId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, device.ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
			if got := fieldOf(t, err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		cmd  Command
		want device.Capability
	}{
		{Power{}, device.CapPower},
		{Volume{}, device.CapVolume},
		{Channel{}, device.CapChannel},
		{Directional{}, device.CapDirectional},
		{Text{}, device.CapText},
		{Voice{}, device.CapVoice},
		{AppLaunch{}, device.CapAppLaunch},
	}

	for _, tt := range tests {
		if got := tt.cmd.Kind(); got != tt.want {
			t.Errorf("%T.Kind() = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		body      string
		want      Command
		wantField string
	}{
		{"power with device id", "power", `{"deviceId":"1"}`, Power{}, ""},
		{"power empty body", "power", ``, Power{}, ""},
		{"volume", "volume", `{"deviceId":"1","action":"down"}`, Volume{Action: "down"}, ""},
		{"channel up", "channel", `{"action":"up"}`, Channel{Action: "up"}, ""},
		{"channel string number", "channel", `{"action":"number","number":"7"}`, Channel{Action: "number", Number: strPtr("7")}, ""},
		{"channel numeric number", "channel", `{"action":"number","number":12}`, Channel{Action: "number", Number: strPtr("12")}, ""},
		{"channel fractional number", "channel", `{"action":"number","number":1.5}`, nil, "number"},
		{"channel null number", "channel", `{"action":"number","number":null}`, nil, "number"},
		{"channel bool number", "channel", `{"action":"number","number":true}`, nil, "number"},
		{"channel down with number", "channel", `{"action":"down","number":"7"}`, nil, "number"},
		{"directional", "directional", `{"direction":"left"}`, Directional{Direction: "left"}, ""},
		{"text empty", "text", `{"text":""}`, Text{Value: strPtr("")}, ""},
		{"text absent", "text", `{"deviceId":"1"}`, nil, "text"},
		{"text not string", "text", `{"text":5}`, nil, "text"},
		{"voice", "voice", `{"command":"pause"}`, Voice{Utterance: "pause"}, ""},
		{"app route name", "app", `{"appId":"youtube"}`, AppLaunch{AppID: "youtube"}, ""},
		{"app wire name", "app-launch", `{"appId":"youtube"}`, AppLaunch{AppID: "youtube"}, ""},
		{"unknown kind", "teleport", `{}`, nil, "kind"},
		{"invalid json", "volume", `{"action":`, nil, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.kind, []byte(tt.body))
			if tt.wantField != "" {
				if !errors.Is(err, device.ErrValidation) {
					t.Fatalf("Decode() error = %v, want ErrValidation", err)
				}
				if f := fieldOf(t, err); f != tt.wantField {
					t.Errorf("field = %q, want %q", f, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			// Compare through JSON so pointer fields compare by value.
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if got.Kind() != tt.want.Kind() || string(gotJSON) != string(wantJSON) {
				t.Errorf("Decode() = %s %s, want %s %s", got.Kind(), gotJSON, tt.want.Kind(), wantJSON)
			}
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	env := NewEnvelope("cmd-1", "tv-1", Volume{Action: VolumeMute}, at)

	if env.Kind != device.CapVolume {
		t.Errorf("Kind = %q, want volume", env.Kind)
	}
	if env.IssuedAt.Location() != time.UTC {
		t.Errorf("IssuedAt should be normalised to UTC")
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	params, ok := wire["params"].(map[string]any)
	if !ok || params["action"] != "mute" {
		t.Errorf("params = %v, want action mute", wire["params"])
	}
	if wire["device_id"] != "tv-1" || wire["kind"] != "volume" {
		t.Errorf("wire = %v", wire)
	}
}
