package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PairPINRequest is the body of POST /pairing/pin.
type PairPINRequest struct {
	DeviceID string `json:"deviceId"`
	PIN      string `json:"pin"`
}

// PairQRRequest is the body of POST /pairing/qr.
type PairQRRequest struct {
	QRData string `json:"qrData"`
}

func (s *Server) handlePairPIN(w http.ResponseWriter, r *http.Request) {
	var req PairPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.auth.PairWithPIN(r.Context(), req.DeviceID, req.PIN)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": d})
}

func (s *Server) handlePairQR(w http.ResponseWriter, r *http.Request) {
	var req PairQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.auth.PairWithQR(r.Context(), req.QRData)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": d})
}

func (s *Server) handleUnpair(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceId")
	if _, err := s.auth.Unpair(r.Context(), id); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpaired", "device_id": id})
}

// handleGeneratePIN exposes a pairing PIN for diagnostics. It is only
// routed when pairing.expose_pin is set.
func (s *Server) handleGeneratePIN(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceId")
	pin, err := s.auth.GeneratePIN(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"device_id": id, "pin": pin})
}
