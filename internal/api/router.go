package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/health/live", s.handleLive)

	// WebSocket endpoints for field devices and dashboards
	r.Get(s.wsCfg.DevicePath, s.handleDeviceWebSocket)
	r.Get(s.wsCfg.ClientPath, s.handleClientWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Get("/online", s.handleListOnline)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/commands", s.handleListCommands)
			})
		})

		r.Route("/lighting", func(r chi.Router) {
			r.Post("/dimmer/{id}", s.handleSetDimmer)
			r.Post("/relay/{id}", s.handleSetRelay)
			r.Post("/daylight-harvest/{id}", s.handleSetDaylightHarvest)
			r.Get("/status/{id}", s.handleLightingStatus)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Post("/ingest/environmental", s.handleIngestEnvironmental)
			r.Post("/ingest/lighting", s.handleIngestLighting)
			r.Get("/latest", s.handleListLatest)
			r.Get("/latest/{id}", s.handleLatestReading)
		})

		r.Get("/broker/stats", s.handleBrokerStats)
	})

	return r
}
