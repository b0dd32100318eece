// Package main is the entry point for the lifescope session server.
//
// The server hosts tagged, nested sessions and the headless windows they own,
// and exposes them over a small HTTP control API.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	./server -port 8000 -profiles profiles.yaml
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop accepting requests, then dispose every session
package main
