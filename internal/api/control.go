package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/device"
)

// ControlResponse is returned once a command has been delivered.
type ControlResponse struct {
	CommandID string            `json:"command_id"`
	DeviceID  string            `json:"device_id"`
	Kind      device.Capability `json:"kind"`
	Status    string            `json:"status"`
}

// handleControl decodes and dispatches a command. The route parameter is
// the command kind; the body carries deviceId plus the kind's fields.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "failed to read request body")
		return
	}

	var target struct {
		DeviceID string `json:"deviceId"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &target); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	if target.DeviceID == "" {
		s.writeDeviceError(w, r, device.NewValidationError("dispatch", "deviceId", "required"))
		return
	}

	cmd, err := command.Decode(chi.URLParam(r, "kind"), body)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), target.DeviceID, cmd)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ControlResponse{
		CommandID: res.CommandID,
		DeviceID:  res.DeviceID,
		Kind:      res.Kind,
		Status:    "sent",
	})
}

// handleDisconnect closes a device's connection and returns it to paired.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	d, err := s.supervisor.Disconnect(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": d})
}
