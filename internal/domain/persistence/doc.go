// Package persistence defines the unit-of-work façade that database-tagged
// sessions save through, plus an in-memory implementation.
//
// The session layer only depends on UnitOfWork. Repositories are handed to
// view-models through the session scope. Guard wraps a unit so SaveChanges
// runs behind a circuit breaker.
package persistence
