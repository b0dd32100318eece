package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// ErrInvalidTransition is returned when a lifecycle transition is not allowed
// from the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State represents resource lifecycle states
type State int32

const (
	StateCreating State = iota
	StateOpen
	StateClosing
	StateClosed
	StateFaulted
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFaulted
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for st := StateCreating; st <= StateFaulted; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown resource state %q", text)
}

// Outcome is the result of running a callback against a tracked resource.
type Outcome int

const (
	// OK means the callback ran and returned no error.
	OK Outcome = iota
	// NotAlive means the resource was closed, faulted or destroyed; the callback did not run.
	NotAlive
	// CallbackFailed means the callback returned an error or panicked.
	CallbackFailed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case NotAlive:
		return "not alive"
	case CallbackFailed:
		return "callback failed"
	default:
		return "unknown"
	}
}

// Params describes a resource being registered.
type Params struct {
	ID        id.ResourceID
	SessionID id.SessionID  // NilSession when not owned by a session
	ParentID  id.ResourceID // NilResource for top-level windows
	Name      string
	Handle    *scope.Handle // owned; disposed exactly once on Closed/Faulted
}

// Metadata is the bookkeeping for one tracked resource. The view and
// view-model are held only while the resource is non-terminal and are
// dropped on Closed/Faulted, so the tracker never keeps a closed window reachable.
type Metadata struct {
	id        id.ResourceID
	sessionID id.SessionID
	parentID  id.ResourceID
	name      string
	createdAt time.Time
	handle    *scope.Handle

	mu        sync.Mutex
	state     State       // Protected by mu
	view      view.Handle // Protected by mu
	viewModel any         // Protected by mu
	fault     error       // Protected by mu
	done      chan struct{}
}

// NewMetadata creates metadata in the Creating state
func NewMetadata(p Params) *Metadata {
	rid := p.ID
	if rid.IsNil() {
		rid = id.NewResourceID()
	}
	return &Metadata{
		id:        rid,
		sessionID: p.SessionID,
		parentID:  p.ParentID,
		name:      p.Name,
		createdAt: time.Now(),
		handle:    p.Handle,
		state:     StateCreating,
		done:      make(chan struct{}),
	}
}

// ID returns the resource ID
func (m *Metadata) ID() id.ResourceID { return m.id }

// SessionID returns the owning session, if any
func (m *Metadata) SessionID() (id.SessionID, bool) { return m.sessionID, !m.sessionID.IsNil() }

// ParentID returns the parent resource, if any
func (m *Metadata) ParentID() (id.ResourceID, bool) { return m.parentID, !m.parentID.IsNil() }

// Name returns the display name given at open time
func (m *Metadata) Name() string { return m.name }

// CreatedAt returns when the resource was registered
func (m *Metadata) CreatedAt() time.Time { return m.createdAt }

// Handle returns the owned scope handle
func (m *Metadata) Handle() *scope.Handle { return m.handle }

// State returns the current lifecycle state
func (m *Metadata) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOpened reports whether the resource is Open
func (m *Metadata) IsOpened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

// Attach binds the live view and view-model. Only valid while Creating.
func (m *Metadata) Attach(v view.Handle, viewModel any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCreating {
		return fmt.Errorf("attach in state %s: %w", m.state, ErrInvalidTransition)
	}
	m.view = v
	m.viewModel = viewModel
	return nil
}

// MarkOpen transitions Creating -> Open.
func (m *Metadata) MarkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCreating {
		return fmt.Errorf("open in state %s: %w", m.state, ErrInvalidTransition)
	}
	m.state = StateOpen
	return nil
}

// BeginClose transitions Open -> Closing. It returns false when the resource
// is not Open (already closing or terminal).
func (m *Metadata) BeginClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return false
	}
	m.state = StateClosing
	return true
}

// SetClosed moves a non-terminal resource to Closed, drops the view
// references, disposes the owned handle and releases waiters. From a
// terminal state it is a no-op and returns false.
func (m *Metadata) SetClosed() (bool, error) {
	return m.finish(StateClosed, nil)
}

// Fault moves a non-terminal resource to Faulted with cause. From a terminal
// state it is a no-op and returns false.
func (m *Metadata) Fault(cause error) (bool, error) {
	if cause == nil {
		cause = errors.New("resource faulted")
	}
	return m.finish(StateFaulted, cause)
}

func (m *Metadata) finish(to State, cause error) (bool, error) {
	m.mu.Lock()
	if m.state.IsTerminal() {
		m.mu.Unlock()
		return false, nil
	}
	m.state = to
	m.fault = cause
	m.view = nil
	m.viewModel = nil
	close(m.done)
	m.mu.Unlock()

	if m.handle == nil {
		return true, nil
	}
	return true, m.handle.Dispose()
}

// Done is closed once the resource reaches a terminal state.
func (m *Metadata) Done() <-chan struct{} { return m.done }

// Err returns the fault cause, nil unless Faulted
func (m *Metadata) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault
}

// Wait blocks until the resource is terminal or ctx ends. After completion it
// returns immediately with the cached result.
func (m *Metadata) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	default:
	}
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// live returns strong references to the view and view-model if the resource
// is still usable.
func (m *Metadata) live() (view.Handle, any, bool) {
	m.mu.Lock()
	v, vm, state := m.view, m.viewModel, m.state
	m.mu.Unlock()

	if state.IsTerminal() || v == nil || !v.IsAlive() {
		return nil, nil, false
	}
	return v, vm, true
}

// WithResource runs fn with the live view and view-model. fn does not run if
// the resource is no longer alive. Errors and panics raised by fn are reported
// as CallbackFailed and not propagated.
func (m *Metadata) WithResource(fn func(v view.Handle, viewModel any) error) Outcome {
	_, outcome := WithResourceValue(m, func(v view.Handle, viewModel any) (struct{}, error) {
		return struct{}{}, fn(v, viewModel)
	})
	return outcome
}

// WithResourceValue is WithResource for callbacks that produce a value.
func WithResourceValue[R any](m *Metadata, fn func(v view.Handle, viewModel any) (R, error)) (result R, outcome Outcome) {
	v, vm, ok := m.live()
	if !ok {
		return result, NotAlive
	}

	defer func() {
		if r := recover(); r != nil {
			var zero R
			result, outcome = zero, CallbackFailed
		}
	}()

	r, err := fn(v, vm)
	if err != nil {
		var zero R
		return zero, CallbackFailed
	}
	return r, OK
}
