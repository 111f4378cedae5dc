package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/remotelink-core/internal/audit"
)

// handleListAudit returns the lifecycle history, newest first.
//
// Query parameters:
//   - device_id: only this device
//   - event: discover, pair, connect, disconnect, unpair or remove
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: q.Get("device_id"),
		Event:    q.Get("event"),
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, p.name+" must be an integer")
			return
		}
		*p.dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list lifecycle history", "error", err)
		writeInternalError(w, "failed to list lifecycle history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
