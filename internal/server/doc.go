// Package server wires the lifescope process together.
//
// This package orchestrates all components:
//   - Root scope with the built-in view-models and services
//   - Resource tracker and session manager (headless views)
//   - Session profiles loaded from YAML
//   - HTTP routing with Gin and the middleware stack
//   - Prometheus registry and the /metrics endpoint
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger and metrics
//  3. Build the root scope, tracker and session manager
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. On shutdown: stop HTTP, close all sessions (bounded), dispose root
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	go srv.Run()
//	defer srv.Shutdown(context.Background())
package server
