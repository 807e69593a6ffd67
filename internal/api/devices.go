package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-gateway/internal/device"
)

// maxCommandLimit caps the ?limit= query of the command log.
const maxCommandLimit = 500

// deviceView is a catalogue device plus its live connectivity.
type deviceView struct {
	device.Device
	Connected bool `json:"connected"`
}

func (s *Server) withConnectivity(d device.Device) deviceView {
	return deviceView{Device: d, Connected: s.gateway.Registry().IsOnline(d.ID)}
}

// handleListDevices returns every catalogued device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, s.withConnectivity(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleCreateDevice registers a device in the catalogue.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if !decodeJSON(w, r, &dev) {
		return
	}
	// Status and timestamps are owned by the gateway.
	dev.Status = ""
	dev.LastSeen = nil
	dev.CreatedAt = time.Time{}

	err := s.devices.CreateDevice(r.Context(), &dev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, s.withConnectivity(dev))
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device "+dev.ID+" already exists")
	case isValidationError(err):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("creating device failed", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to create device")
	}
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		s.writeDeviceLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, s.withConnectivity(*dev))
}

// handleListOnline returns the IDs of devices with an open session,
// including devices not in the catalogue.
func (s *Server) handleListOnline(w http.ResponseWriter, _ *http.Request) {
	online := s.gateway.Registry().ListOnline()
	writeJSON(w, http.StatusOK, map[string]any{"devices": online, "count": len(online)})
}

// handleListCommands returns the device's command log, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 500)
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := device.DefaultCommandLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCommandLimit {
			writeBadRequest(w, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	commands, err := s.devices.ListCommands(r.Context(), id, limit)
	if err != nil {
		s.writeDeviceLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "commands": commands, "count": len(commands)})
}

// writeDeviceLookupError maps a catalogue lookup failure to a response.
func (s *Server) writeDeviceLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, device.ErrDeviceNotFound) {
		writeNotFound(w, "device "+id+" not found")
		return
	}
	s.logger.Error("device lookup failed", "device_id", id, "error", err)
	writeInternalError(w, "failed to load device")
}

// isValidationError reports whether err came from device validation.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidID) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidDeviceType) ||
		errors.Is(err, device.ErrInvalidStatus)
}
