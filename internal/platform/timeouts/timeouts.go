// Package timeouts defines shared timeout constants used across commands.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// Render caps a single page render, nested renders included.
const Render = 30 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers and telemetry exporters wait for
// in-flight work during graceful shutdown.
const Shutdown = 5 * time.Second

// HealthCheck caps one gRPC health check call.
const HealthCheck = time.Second
