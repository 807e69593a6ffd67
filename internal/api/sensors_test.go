package api

import (
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/smarthome-gateway/internal/broker"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/logging"
)

func TestIngestEnvironmental(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/sensors/ingest/environmental", map[string]any{
		"device_id":   "esp32-env",
		"timestamp":   "2026-03-01T12:00:00Z",
		"temperature": 21.5,
		"humidity":    48.0,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["status"] != "accepted" {
		t.Errorf("status = %v, want accepted", resp["status"])
	}
	if resp["message"] != "Environmental sensor data queued for processing" {
		t.Errorf("message = %v", resp["message"])
	}
	if resp["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %v, want echoed value", resp["timestamp"])
	}

	st, ok := env.gw.Cache().Get("esp32-env")
	if !ok {
		t.Fatal("reading not cached")
	}
	if st.Fields["temperature"] != 21.5 {
		t.Errorf("temperature = %v, want 21.5", st.Fields["temperature"])
	}
	if _, ok := st.Fields["pressure"]; ok {
		t.Error("pressure cached although not sent")
	}
}

func TestIngestEnvironmental_DefaultTimestamp(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/sensors/ingest/environmental", map[string]any{
		"device_id":   "esp32-env",
		"temperature": 19.0,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if resp := decodeBody(t, w); resp["timestamp"] == "" {
		t.Error("timestamp not defaulted")
	}
}

func TestIngestLighting(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/sensors/ingest/lighting", map[string]any{
		"device_id":             "esp32-light",
		"light_level":           55.0,
		"light_lux":             320.0,
		"dimmer_brightness":     60,
		"daylight_harvest_mode": true,
		"relays":                []bool{true, false, false, true},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["message"] != "Lighting sensor data queued for processing" {
		t.Errorf("message = %v", resp["message"])
	}

	st, ok := env.gw.Cache().Get("esp32-light")
	if !ok {
		t.Fatal("reading not cached")
	}
	relays, ok := st.Fields["relays"].([]any)
	if !ok || len(relays) != 4 || relays[0] != true {
		t.Errorf("relays = %v, want [true false false true]", st.Fields["relays"])
	}
}

func TestIngest_Validation(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"env missing device", "/api/v1/sensors/ingest/environmental", map[string]any{"temperature": 20.0}},
		{"env bad timestamp", "/api/v1/sensors/ingest/environmental", map[string]any{"device_id": "d1", "timestamp": "yesterday"}},
		{"env unknown field", "/api/v1/sensors/ingest/environmental", map[string]any{"device_id": "d1", "co2": 400}},
		{"light level high", "/api/v1/sensors/ingest/lighting", map[string]any{"device_id": "d1", "light_level": 101.0}},
		{"negative lux", "/api/v1/sensors/ingest/lighting", map[string]any{"device_id": "d1", "light_lux": -1.0}},
		{"dimmer high", "/api/v1/sensors/ingest/lighting", map[string]any{"device_id": "d1", "dimmer_brightness": 150}},
		{"three relays", "/api/v1/sensors/ingest/lighting", map[string]any{"device_id": "d1", "relays": []bool{true, true, true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}

	if env.gw.Cache().Len() != 0 {
		t.Errorf("cache has %d entries after rejected readings, want 0", env.gw.Cache().Len())
	}
}

func TestLatestReading(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/sensors/latest/esp32-env", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status before ingest = %d, want %d", w.Code, http.StatusNotFound)
	}

	env.do(t, http.MethodPost, "/api/v1/sensors/ingest/environmental", map[string]any{
		"device_id":   "esp32-env",
		"temperature": 20.0,
	})
	env.do(t, http.MethodPost, "/api/v1/sensors/ingest/environmental", map[string]any{
		"device_id": "esp32-env",
		"humidity":  40.0,
	})

	w = env.do(t, http.MethodGet, "/api/v1/sensors/latest/esp32-env", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	if data["temperature"] != 20.0 || data["humidity"] != 40.0 {
		t.Errorf("data = %v, want merged temperature and humidity", data)
	}
}

func TestListLatest(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/sensors/latest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["count"] != float64(0) {
		t.Errorf("count = %v, want 0 before any ingest", resp["count"])
	}

	for _, id := range []string{"esp32-b", "esp32-a"} {
		env.do(t, http.MethodPost, "/api/v1/sensors/ingest/environmental", map[string]any{
			"device_id":   id,
			"temperature": 19.5,
		})
	}

	resp := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/sensors/latest", nil))
	if resp["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", resp["count"])
	}
	readings := resp["readings"].([]any)
	first := readings[0].(map[string]any)
	second := readings[1].(map[string]any)
	if first["device_id"] != "esp32-a" || second["device_id"] != "esp32-b" {
		t.Errorf("readings = %v, want sorted esp32-a, esp32-b", readings)
	}
	if first["online"] != false {
		t.Errorf("online = %v, want false for HTTP-only device", first["online"])
	}
	if data := first["data"].(map[string]any); data["temperature"] != 19.5 {
		t.Errorf("data = %v, want temperature 19.5", data)
	}
}

// hungRedis returns the address of a TCP server that accepts connections
// and never answers.
func hungRedis(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestIngest_DeadBrokerDoesNotBlock(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.QueueSize = 4
	cfg.Broker.PublishTimeout = 1
	cfg.Broker.CircuitBreaker.FailureThreshold = 1

	client := redis.NewClient(&redis.Options{Addr: hungRedis(t), MaxRetries: -1})
	pub := broker.NewRedisPublisher(client, cfg, logging.Discard())
	t.Cleanup(func() { pub.Close() })

	env := testServerWithBroker(t, pub)

	const readings = 50
	for i := range readings {
		start := time.Now()
		w := env.do(t, http.MethodPost, "/api/v1/sensors/ingest/environmental", map[string]any{
			"device_id":   "esp32-env",
			"temperature": 20.0 + float64(i),
		})
		if w.Code != http.StatusAccepted {
			t.Fatalf("ingest %d: status = %d, want %d", i, w.Code, http.StatusAccepted)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("ingest %d took %v with a dead broker", i, elapsed)
		}
	}

	st, ok := env.gw.Cache().Get("esp32-env")
	if !ok || st.Fields["temperature"] != 20.0+float64(readings-1) {
		t.Errorf("cached state = %v, want the last reading", st.Fields)
	}

	resp := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/broker/stats", nil))
	if resp["enabled"] != true {
		t.Errorf("broker stats enabled = %v, want true", resp["enabled"])
	}
	if s := pub.Stats(); s.Published != 0 {
		t.Errorf("Published = %d, want 0 against a dead broker", s.Published)
	}
}
