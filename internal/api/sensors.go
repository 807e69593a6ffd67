package api

import (
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-gateway/internal/broker"
	"github.com/nerrad567/smarthome-gateway/internal/device"
	"github.com/nerrad567/smarthome-gateway/internal/gateway"
)

// relayCount is the number of relay channels on a lighting controller.
const relayCount = gateway.MaxRelayChannel - gateway.MinRelayChannel + 1

// EnvironmentalReading is a BME280 reading posted by an environmental sensor.
type EnvironmentalReading struct {
	DeviceID    string   `json:"device_id"`
	Timestamp   string   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
}

// LightingReading is a light sensor and control snapshot posted by a
// lighting controller.
type LightingReading struct {
	DeviceID            string   `json:"device_id"`
	Timestamp           string   `json:"timestamp"`
	LightLevel          *float64 `json:"light_level"`
	LightLux            *float64 `json:"light_lux"`
	DimmerBrightness    *int     `json:"dimmer_brightness"`
	DaylightHarvestMode *bool    `json:"daylight_harvest_mode"`
	Relays              []bool   `json:"relays"`
}

// IngestResponse acknowledges an accepted reading.
type IngestResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
}

// handleIngestEnvironmental accepts an environmental reading.
func (s *Server) handleIngestEnvironmental(w http.ResponseWriter, r *http.Request) {
	var in EnvironmentalReading
	if !decodeJSON(w, r, &in) {
		return
	}
	ts, ok := validateReadingHeader(w, in.DeviceID, in.Timestamp)
	if !ok {
		return
	}

	data := map[string]any{"timestamp": ts}
	putFloat(data, "temperature", in.Temperature)
	putFloat(data, "humidity", in.Humidity)
	putFloat(data, "pressure", in.Pressure)

	s.gateway.IngestTelemetry(r.Context(), in.DeviceID, data, broker.ChannelEnvironmental, gateway.SensorDataEvent)

	writeJSON(w, http.StatusAccepted, IngestResponse{
		Status:    "accepted",
		Message:   "Environmental sensor data queued for processing",
		DeviceID:  in.DeviceID,
		Timestamp: ts,
	})
}

// handleIngestLighting accepts a lighting reading.
func (s *Server) handleIngestLighting(w http.ResponseWriter, r *http.Request) {
	var in LightingReading
	if !decodeJSON(w, r, &in) {
		return
	}
	ts, ok := validateReadingHeader(w, in.DeviceID, in.Timestamp)
	if !ok {
		return
	}
	if msg := validateLighting(in); msg != "" {
		writeValidationError(w, msg)
		return
	}

	data := map[string]any{"timestamp": ts}
	putFloat(data, "light_level", in.LightLevel)
	putFloat(data, "light_lux", in.LightLux)
	if in.DimmerBrightness != nil {
		data["dimmer_brightness"] = *in.DimmerBrightness
	}
	if in.DaylightHarvestMode != nil {
		data["daylight_harvest_mode"] = *in.DaylightHarvestMode
	}
	if in.Relays != nil {
		relays := make([]any, len(in.Relays))
		for i, on := range in.Relays {
			relays[i] = on
		}
		data["relays"] = relays
	}

	s.gateway.IngestTelemetry(r.Context(), in.DeviceID, data, broker.ChannelLighting, gateway.LightingDataEvent)

	writeJSON(w, http.StatusAccepted, IngestResponse{
		Status:    "accepted",
		Message:   "Lighting sensor data queued for processing",
		DeviceID:  in.DeviceID,
		Timestamp: ts,
	})
}

// handleLatestReading returns the merged cached state of a device.
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, ok := s.gateway.Cache().Get(id)
	if !ok {
		writeNotFound(w, "no readings for device "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   st.DeviceID,
		"data":        st.Fields,
		"last_update": st.LastUpdate,
		"online":      s.gateway.Registry().IsOnline(id),
	})
}

// handleListLatest returns the last known reading of every cached device,
// sorted by device ID.
func (s *Server) handleListLatest(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.gateway.Cache().Snapshot()
	registry := s.gateway.Registry()

	readings := make([]map[string]any, 0, len(snapshot))
	for _, id := range slices.Sorted(maps.Keys(snapshot)) {
		st := snapshot[id]
		readings = append(readings, map[string]any{
			"device_id":   st.DeviceID,
			"data":        st.Fields,
			"last_update": st.LastUpdate,
			"online":      registry.IsOnline(id),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// validateReadingHeader checks the device ID and timestamp shared by every
// reading. A missing timestamp defaults to now. It writes the error response
// itself and returns the normalised timestamp.
func validateReadingHeader(w http.ResponseWriter, deviceID, timestamp string) (string, bool) {
	if err := device.ValidateID(deviceID); err != nil {
		writeValidationError(w, err.Error())
		return "", false
	}
	if timestamp == "" {
		return time.Now().UTC().Format(time.RFC3339Nano), true
	}
	if _, err := time.Parse(time.RFC3339Nano, timestamp); err != nil {
		writeValidationError(w, "timestamp must be RFC 3339")
		return "", false
	}
	return timestamp, true
}

func validateLighting(in LightingReading) string {
	switch {
	case in.LightLevel != nil && (*in.LightLevel < 0 || *in.LightLevel > 100):
		return "light_level must be between 0 and 100"
	case in.LightLux != nil && *in.LightLux < 0:
		return "light_lux must not be negative"
	case in.DimmerBrightness != nil && (*in.DimmerBrightness < 0 || *in.DimmerBrightness > 100):
		return "dimmer_brightness must be between 0 and 100"
	case in.Relays != nil && len(in.Relays) != relayCount:
		return "relays must contain exactly 4 values"
	default:
		return ""
	}
}

func putFloat(data map[string]any, key string, v *float64) {
	if v != nil {
		data[key] = *v
	}
}
