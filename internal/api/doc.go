// Package api implements the HTTP REST API and WebSocket server of the
// smart home gateway.
//
// This package provides:
//   - the device catalogue endpoints under /api/v1/devices
//   - lighting control endpoints that forward commands to connected devices
//   - sensor ingestion endpoints for devices that post over HTTP
//   - WebSocket endpoints for field devices and dashboard clients
//   - health, readiness and liveness probes
//   - a middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin boundary around the gateway core. WebSocket
// connections are upgraded with gorilla/websocket and handed to
// gateway.ServeDevice or gateway.ServeClient, which own the session
// protocol. REST handlers validate input, look devices up in the catalogue
// and then call into the gateway.
//
// # Graceful Degradation
//
// The server runs without the message broker and without InfluxDB. Only the
// database is required for readiness; the other services are reported by
// /health but never fail it.
package api
