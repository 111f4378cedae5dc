package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/discovery"
)

// ScanRequest is the body of POST /discovery/scan. Every field is optional.
type ScanRequest struct {
	TimeoutMS      int    `json:"timeoutMs"`
	OnlyCapability string `json:"onlyCapability"`
	OnlyAndroidTV  bool   `json:"onlyAndroidTV"`
}

// maxScanTimeoutMS caps a caller-supplied scan timeout.
const maxScanTimeoutMS = 60_000

// DeviceList is the response body of every device listing route.
type DeviceList struct {
	Devices []device.Device `json:"devices"`
	Count   int             `json:"count"`
}

func deviceList(devices []device.Device) DeviceList {
	if devices == nil {
		devices = []device.Device{}
	}
	return DeviceList{Devices: devices, Count: len(devices)}
}

// handleDiscover runs a scan with default options.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	s.scan(w, r, discovery.Options{})
}

// handleScan runs a scan with the options in the request body.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	opts, err := req.options()
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	s.scan(w, r, opts)
}

func (req ScanRequest) options() (discovery.Options, error) {
	var opts discovery.Options
	if req.TimeoutMS < 0 || req.TimeoutMS > maxScanTimeoutMS {
		return opts, device.NewValidationError("discover", "timeoutMs", "must be between 0 and 60000")
	}
	opts.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond

	if req.OnlyCapability != "" {
		c := device.Capability(req.OnlyCapability)
		if !device.ValidCapability(c) {
			return opts, device.NewValidationError("discover", "onlyCapability", "unknown capability "+req.OnlyCapability)
		}
		opts.OnlyCapability = c
	}
	opts.OnlyAndroidTV = req.OnlyAndroidTV
	return opts, nil
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request, opts discovery.Options) {
	devices, err := s.discovery.Scan(r.Context(), opts)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceList(devices))
}

// handleStopDiscovery cancels any scan in progress.
func (s *Server) handleStopDiscovery(w http.ResponseWriter, _ *http.Request) {
	s.discovery.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleRecentDevices lists every known device, offline ones included.
func (s *Server) handleRecentDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.discovery.Recent(r.Context())
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceList(devices))
}

// handlePairedDevices lists paired and connected devices.
func (s *Server) handlePairedDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.discovery.Paired(r.Context())
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceList(devices))
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.discovery.Device(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
