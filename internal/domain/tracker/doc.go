// Package tracker keeps per-window bookkeeping for the lifetime manager.
//
// Lifecycle:
//
//	Creating --(construction succeeds)--> Open
//	Open     --(close requested)---------> Closing
//	Closing  --(teardown completes)------> Closed
//	any non-terminal --(error)-----------> Faulted
//
// Closed and Faulted are terminal: later SetClosed/Fault calls are no-ops and
// the owned scope handle is disposed exactly once.
//
// The Tracker map is the only shared mutable state of the subsystem. It is
// constructed once at startup and passed explicitly to the session manager.
package tracker
