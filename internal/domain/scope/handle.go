package scope

import (
	"sync"
	"sync/atomic"
)

// Handle is the single owner of one child scope. Disposing the handle
// disposes the scope and everything created from it, never its parent.
type Handle struct {
	scope    *Container
	once     sync.Once
	disposed atomic.Bool
	err      error // first dispose error, written inside once
}

// NewHandle takes ownership of c.
func NewHandle(c *Container) *Handle {
	return &Handle{scope: c}
}

// Scope returns the owned scope
func (h *Handle) Scope() *Container { return h.scope }

// Tag returns the owned scope's tag
func (h *Handle) Tag() Tag { return h.scope.Tag() }

// Dispose disposes the owned scope once. The first call returns the dispose
// error, if any; later calls return nil.
func (h *Handle) Dispose() error {
	first := false
	h.once.Do(func() {
		first = true
		h.err = h.scope.Dispose()
		h.disposed.Store(true)
	})
	if !first {
		return nil
	}
	return h.err
}

// Disposed reports whether Dispose has completed
func (h *Handle) Disposed() bool { return h.disposed.Load() }

// Err returns the error recorded by the first Dispose, if any.
func (h *Handle) Err() error {
	if !h.disposed.Load() {
		return nil
	}
	return h.err
}
