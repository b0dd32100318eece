package tracker

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

var (
	// ErrResourceNotFound is returned by Get for an unknown resource.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrUnknownSession is returned when registering a resource whose session
	// the directory does not know.
	ErrUnknownSession = errors.New("resource refers to unknown session")
)

// DuplicateResourceError is returned when registering an ID twice.
type DuplicateResourceError struct {
	ID id.ResourceID
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("resource %s is already registered", e.ID)
}

// Directory answers whether a session is live. The session manager implements it.
type Directory interface {
	IsSessionActive(sid id.SessionID) bool
}

// Tracker is the process-wide registry of tracked resources and the single
// authority on whether a resource is still open.
type Tracker struct {
	mu        sync.RWMutex
	entries   map[id.ResourceID]*Metadata // Protected by mu
	directory Directory                   // Protected by mu

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates an empty tracker
func New(logger *logging.Logger) *Tracker {
	return &Tracker{
		entries: make(map[id.ResourceID]*Metadata),
		logger:  logging.OrNop(logger).Named("tracker"),
	}
}

// WithMetrics adds metrics tracking to the tracker
func (t *Tracker) WithMetrics(metrics *monitoring.Metrics) *Tracker {
	t.metrics = metrics
	return t
}

// AttachDirectory enables session referential checks on Register.
func (t *Tracker) AttachDirectory(d Directory) {
	t.mu.Lock()
	t.directory = d
	t.mu.Unlock()
}

// Register inserts m. The owning session, if any, must be known to the
// directory at this moment; it is not re-checked later.
func (t *Tracker) Register(m *Metadata) error {
	t.mu.RLock()
	dir := t.directory
	t.mu.RUnlock()

	// Checked outside t.mu: the directory takes its own lock.
	if sid, ok := m.SessionID(); ok && dir != nil && !dir.IsSessionActive(sid) {
		return fmt.Errorf("register %s in session %s: %w", m.ID(), sid, ErrUnknownSession)
	}

	t.mu.Lock()
	if _, exists := t.entries[m.ID()]; exists {
		t.mu.Unlock()
		return &DuplicateResourceError{ID: m.ID()}
	}
	t.entries[m.ID()] = m
	t.mu.Unlock()

	t.metrics.ResourceRegistered()
	t.logger.Debug("Resource registered", logging.Resource(m.ID()), zap.String("name", m.Name()))
	return nil
}

// Unregister removes rid. Removing an absent ID is a no-op; the result
// reports whether anything was removed.
func (t *Tracker) Unregister(rid id.ResourceID) bool {
	t.mu.Lock()
	_, ok := t.entries[rid]
	delete(t.entries, rid)
	t.mu.Unlock()

	if ok {
		t.metrics.ResourceUnregistered()
		t.logger.Debug("Resource unregistered", logging.Resource(rid))
	}
	return ok
}

// Get returns the metadata for rid
func (t *Tracker) Get(rid id.ResourceID) (*Metadata, error) {
	m, ok := t.TryGet(rid)
	if !ok {
		return nil, fmt.Errorf("%s: %w", rid, ErrResourceNotFound)
	}
	return m, nil
}

// TryGet returns the metadata for rid if registered
func (t *Tracker) TryGet(rid id.ResourceID) (*Metadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.entries[rid]
	return m, ok
}

// IsOpen reports whether rid is registered and Open
func (t *Tracker) IsOpen(rid id.ResourceID) bool {
	m, ok := t.TryGet(rid)
	return ok && m.IsOpened()
}

// Len returns the number of registered resources
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a copy of every registered entry.
func (t *Tracker) Snapshot() []*Metadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Metadata, 0, len(t.entries))
	for _, m := range t.entries {
		out = append(out, m)
	}
	return out
}

// ForEachInSession calls fn for each resource of sid until fn returns false.
// It iterates a snapshot taken before the first call, so fn may re-enter the
// tracker; registrations and removals made meanwhile are not reflected.
func (t *Tracker) ForEachInSession(sid id.SessionID, fn func(m *Metadata) bool) {
	for _, m := range t.Snapshot() {
		if owner, ok := m.SessionID(); !ok || owner != sid {
			continue
		}
		if !fn(m) {
			return
		}
	}
}

// AliveInSession returns the Open resources of sid.
func (t *Tracker) AliveInSession(sid id.SessionID) []*Metadata {
	var alive []*Metadata
	t.ForEachInSession(sid, func(m *Metadata) bool {
		if m.IsOpened() {
			alive = append(alive, m)
		}
		return true
	})
	return alive
}
