// Package middleware provides the gin middleware stack of the control API:
// CORS, per-client and global rate limiting, request IDs and access logs.
package middleware
