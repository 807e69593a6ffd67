package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-gateway/internal/gateway"
)

// DimmerRequest sets the PWM dimmer brightness.
type DimmerRequest struct {
	Brightness *int `json:"brightness"`
}

// RelayRequest switches one relay channel.
type RelayRequest struct {
	Channel *int  `json:"channel"`
	State   *bool `json:"state"`
}

// DaylightHarvestRequest toggles daylight harvesting.
type DaylightHarvestRequest struct {
	Enabled *bool `json:"enabled"`
}

// ControlResponse is returned once a command was handed to the device.
type ControlResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DeviceID string `json:"device_id"`
}

// handleSetDimmer sends a dimmer command.
func (s *Server) handleSetDimmer(w http.ResponseWriter, r *http.Request) {
	var req DimmerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Brightness == nil {
		writeValidationError(w, "brightness is required")
		return
	}

	id := chi.URLParam(r, "id")
	cmd, err := gateway.DimmerCommand(id, *req.Brightness)
	s.dispatch(w, r, id, cmd, err, fmt.Sprintf("Dimmer set to %d%%", *req.Brightness))
}

// handleSetRelay sends a relay command.
func (s *Server) handleSetRelay(w http.ResponseWriter, r *http.Request) {
	var req RelayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Channel == nil || req.State == nil {
		writeValidationError(w, "channel and state are required")
		return
	}

	id := chi.URLParam(r, "id")
	cmd, err := gateway.RelayCommand(id, *req.Channel, *req.State)
	s.dispatch(w, r, id, cmd, err, fmt.Sprintf("Relay %d set to %s", *req.Channel, onOff(*req.State)))
}

// handleSetDaylightHarvest toggles daylight harvesting.
func (s *Server) handleSetDaylightHarvest(w http.ResponseWriter, r *http.Request) {
	var req DaylightHarvestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeValidationError(w, "enabled is required")
		return
	}

	id := chi.URLParam(r, "id")
	cmd, err := gateway.DaylightHarvestCommand(id, *req.Enabled)
	mode := "disabled"
	if *req.Enabled {
		mode = "enabled"
	}
	s.dispatch(w, r, id, cmd, err, "Daylight harvesting "+mode)
}

// dispatch runs the shared control flow: catalogue lookup, command
// validation, delivery, then the command log.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, id string, cmd gateway.Command, buildErr error, message string) {
	ctx := r.Context()

	if _, err := s.devices.GetDevice(ctx, id); err != nil {
		s.writeDeviceLookupError(w, id, err)
		return
	}
	if buildErr != nil {
		writeValidationError(w, buildErr.Error())
		return
	}

	err := s.gateway.SendCommand(ctx, cmd)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrDeviceOffline):
		writeUnavailable(w, "device "+id+" is offline")
		return
	case errors.Is(err, gateway.ErrInvalidCommand):
		writeValidationError(w, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeUnavailable(w, "request cancelled")
		return
	default:
		s.logger.Error("sending command failed", "device_id", id, "command", cmd.Name, "error", err)
		writeInternalError(w, "failed to send command")
		return
	}

	// The frame is already on the wire; a logging failure does not undo it.
	if _, err := s.devices.RecordCommand(context.WithoutCancel(ctx), id, cmd.Name, cmd.Value); err != nil {
		s.logger.Warn("recording command failed", "device_id", id, "command", cmd.Name, "error", err)
	}

	s.logger.Info("command sent", "device_id", id, "command", cmd.Name, "value", cmd.Value)
	writeJSON(w, http.StatusOK, ControlResponse{
		Status:   "success",
		Message:  message,
		DeviceID: id,
	})
}

// handleLightingStatus returns the device's connectivity and latest cached
// readings.
func (s *Server) handleLightingStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		s.writeDeviceLookupError(w, id, err)
		return
	}

	resp := map[string]any{
		"device_id": id,
		"name":      dev.Name,
		"online":    s.gateway.Registry().IsOnline(id),
		"data":      nil,
	}
	if st, ok := s.gateway.Cache().Get(id); ok {
		resp["data"] = st.Fields
		resp["last_update"] = st.LastUpdate
	}
	writeJSON(w, http.StatusOK, resp)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
