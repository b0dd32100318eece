// Package http provides the gin control and diagnostics API for the session
// manager.
//
// Routes:
//   - GET  /health, /metrics, /metrics/json, /profiles, /resources
//   - GET  /sessions, POST /sessions (by tag or profile, optional parent)
//   - GET  /sessions/:id, DELETE /sessions/:id, GET /sessions/:id/children
//   - POST /sessions/:id/windows, DELETE /sessions/:id/windows/:rid
//   - POST /sessions/:id/windows/:rid/activate, /sessions/:id/windows/:rid/closed
package http
