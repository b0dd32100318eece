package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/lifescope/internal/domain/persistence"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// DisposeHook runs during disposal after resources are closed and before the
// session scope is torn down. Panics are recovered and reported as errors.
type DisposeHook func(ctx context.Context, s *Session) error

// Session is a tagged scope with its own resources and child sessions.
type Session struct {
	id        id.SessionID
	tag       scope.Tag
	parent    *Session
	manager   *Manager
	handle    *scope.Handle
	createdAt time.Time
	logger    *logging.Logger

	autoSave           bool
	autoCloseWhenEmpty bool
	onDispose          []DisposeHook

	mu        sync.Mutex
	resources map[id.ResourceID]struct{} // Protected by mu
	children  map[id.SessionID]*Session  // Protected by mu
	announced bool                       // Protected by mu; registered with the manager
	disposing bool                       // Protected by mu
	disposed  bool                       // Protected by mu
	opening   sync.WaitGroup             // windows between registration and Open
	created   chan struct{}              // closed once SessionCreated was delivered
	done      chan struct{}
	err       error // Protected by mu; set when disposed
}

// ID returns the session ID
func (s *Session) ID() id.SessionID { return s.id }

// Tag returns the session's scope tag
func (s *Session) Tag() scope.Tag { return s.tag }

// ParentID returns the parent session, if any
func (s *Session) ParentID() (id.SessionID, bool) {
	if s.parent == nil {
		return id.NilSession, false
	}
	return s.parent.id, true
}

// Scope returns the session's container
func (s *Session) Scope() *scope.Container { return s.handle.Scope() }

// CreatedAt returns when the session was built
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// AutoSave reports whether disposal saves through the scope's unit of work
func (s *Session) AutoSave() bool { return s.autoSave }

// AutoCloseWhenEmpty reports whether the session disposes itself once its
// last resource and child are gone.
func (s *Session) AutoCloseWhenEmpty() bool { return s.autoCloseWhenEmpty }

// Done is closed when disposal has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the aggregated disposal error once Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// IsDisposed reports whether disposal has started or completed.
func (s *Session) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposing || s.disposed
}

// ResourceIDs returns the IDs of the resources owned by the session.
func (s *Session) ResourceIDs() []id.ResourceID {
	s.mu.Lock()
	out := make([]id.ResourceID, 0, len(s.resources))
	for rid := range s.resources {
		out = append(out, rid)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ResourceCount returns the number of resources owned by the session
func (s *Session) ResourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

// Children returns the direct child sessions, oldest first.
func (s *Session) Children() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c)
	}
	s.mu.Unlock()
	sortByCreation(out)
	return out
}

// Resources returns the tracker entries owned by the session.
func (s *Session) Resources() []*tracker.Metadata {
	var out []*tracker.Metadata
	for _, rid := range s.ResourceIDs() {
		if m, ok := s.manager.tracker.TryGet(rid); ok {
			out = append(out, m)
		}
	}
	return out
}

// CreateChild starts a builder for a session nested under s.
func (s *Session) CreateChild(tag scope.Tag) *Builder {
	b := s.manager.newBuilder(tag, s)
	if s.IsDisposed() {
		b.err = fmt.Errorf("create child of %s: %w", s.id, ErrUseAfterDispose)
	}
	return b
}

func (s *Session) checkUsable(op string) error {
	if s.IsDisposed() {
		return fmt.Errorf("%s on session %s: %w", op, s.id, ErrUseAfterDispose)
	}
	return nil
}

// Resolve resolves T from the session's scope.
func Resolve[T any](s *Session) (T, error) {
	var zero T
	if err := s.checkUsable("resolve"); err != nil {
		return zero, err
	}
	v, err := scope.Resolve[T](s.handle.Scope())
	if errors.Is(err, scope.ErrScopeDisposed) {
		return zero, fmt.Errorf("resolve on session %s: %w", s.id, ErrUseAfterDispose)
	}
	return v, err
}

// OpenOption customises OpenWindow.
type OpenOption func(*openOptions)

type openOptions struct {
	name    string
	parent  id.ResourceID
	modules []scope.Module
}

// WithName sets the window scope name and the resource display name.
func WithName(name string) OpenOption {
	return func(o *openOptions) { o.name = name }
}

// WithParentResource nests the window under another resource of the same
// session. Closing the parent closes the window first.
func WithParentResource(rid id.ResourceID) OpenOption {
	return func(o *openOptions) { o.parent = rid }
}

// WithWindowModules installs modules into the window's own scope.
func WithWindowModules(modules ...scope.Module) OpenOption {
	return func(o *openOptions) { o.modules = append(o.modules, modules...) }
}

// OpenWindow creates a window scope under s, resolves VM from it, creates
// and shows its view and tracks it as a resource of s. When any step fails
// or ctx ends before the window is open, nothing stays registered.
func OpenWindow[VM any](ctx context.Context, s *Session, opts ...OpenOption) (id.ResourceID, error) {
	return s.openWindow(ctx, reflect.TypeFor[VM](), opts...)
}

func (s *Session) openWindow(ctx context.Context, vmType reflect.Type, opts ...OpenOption) (id.ResourceID, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = vmType.String()
	}
	if err := s.checkUsable("open window"); err != nil {
		return id.NilResource, err
	}
	if err := ctx.Err(); err != nil {
		return id.NilResource, err
	}
	if !o.parent.IsNil() {
		if _, err := s.owned(o.parent); err != nil {
			return id.NilResource, fmt.Errorf("parent resource: %w", err)
		}
	}

	windowScope, err := s.handle.Scope().BeginChildScope(scope.Window(o.name), o.modules...)
	if err != nil {
		if errors.Is(err, scope.ErrScopeDisposed) {
			return id.NilResource, fmt.Errorf("open window on session %s: %w", s.id, ErrUseAfterDispose)
		}
		return id.NilResource, fmt.Errorf("open window %q: %w", o.name, err)
	}
	handle := scope.NewHandle(windowScope)
	meta := tracker.NewMetadata(tracker.Params{
		SessionID: s.id,
		ParentID:  o.parent,
		Name:      o.name,
		Handle:    handle,
	})

	if err := s.manager.tracker.Register(meta); err != nil {
		_ = handle.Dispose()
		return id.NilResource, err
	}

	s.mu.Lock()
	if s.disposing || s.disposed {
		s.mu.Unlock()
		s.abandon(meta, ErrUseAfterDispose)
		return id.NilResource, fmt.Errorf("open window on session %s: %w", s.id, ErrUseAfterDispose)
	}
	s.resources[meta.ID()] = struct{}{}
	s.opening.Add(1)
	s.mu.Unlock()
	defer s.opening.Done()

	v, err := s.construct(ctx, windowScope, vmType, meta)
	if err != nil {
		s.abandon(meta, err)
		return id.NilResource, fmt.Errorf("open window %q: %w", o.name, err)
	}
	if err := meta.MarkOpen(); err != nil {
		// Closed concurrently, typically by session disposal.
		_ = v.Close(context.WithoutCancel(ctx))
		s.abandon(meta, err)
		return id.NilResource, fmt.Errorf("open window %q: %w", o.name, err)
	}

	s.manager.metrics.IncResourcesOpened()
	s.logger.Debug("Window opened",
		logging.Resource(meta.ID()),
		zap.String("name", o.name),
		zap.String("view_model", vmType.String()),
	)
	return meta.ID(), nil
}

// construct resolves the view-model and brings its view up. On failure after
// the view exists, the view is closed before returning.
func (s *Session) construct(ctx context.Context, windowScope *scope.Container, vmType reflect.Type, meta *tracker.Metadata) (view.Handle, error) {
	vm, err := windowScope.ResolveType(vmType)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.manager.views.CreateView(ctx, vm)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}

	fail := func(cause error) (view.Handle, error) {
		_ = v.Close(context.WithoutCancel(ctx))
		return nil, cause
	}
	if err := meta.Attach(v, vm); err != nil {
		return fail(err)
	}
	if init, ok := vm.(view.Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			return fail(fmt.Errorf("initialize view-model: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := v.Show(ctx); err != nil {
		return fail(fmt.Errorf("show view: %w", err))
	}
	return v, nil
}

// abandon faults a resource that never opened and forgets it without
// triggering auto-close.
func (s *Session) abandon(meta *tracker.Metadata, cause error) {
	if _, err := meta.Fault(cause); err != nil {
		s.logger.Warn("Window scope disposal failed", logging.Resource(meta.ID()), zap.Error(err))
	}
	s.manager.tracker.Unregister(meta.ID())
	s.mu.Lock()
	delete(s.resources, meta.ID())
	s.mu.Unlock()

	s.manager.metrics.IncResourcesFaulted()
	s.logger.Debug("Window construction abandoned", logging.Resource(meta.ID()), zap.Error(cause))
}

func (s *Session) owned(rid id.ResourceID) (*tracker.Metadata, error) {
	s.mu.Lock()
	_, ok := s.resources[rid]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", rid, ErrResourceNotFound)
	}
	meta, ok := s.manager.tracker.TryGet(rid)
	if !ok {
		return nil, fmt.Errorf("%s: %w", rid, ErrResourceNotFound)
	}
	return meta, nil
}

// CloseResource closes an open window of s. Windows nested under it are
// closed first. A view-model implementing view.CloseGuard can veto the close
// with ErrCloseVetoed. Closing a window that is already closing is a no-op.
func (s *Session) CloseResource(ctx context.Context, rid id.ResourceID) error {
	if err := s.checkUsable("close resource"); err != nil {
		return err
	}
	meta, err := s.owned(rid)
	if err != nil {
		return err
	}
	switch st := meta.State(); {
	case st == tracker.StateCreating:
		return fmt.Errorf("close %s in state %s: %w", rid, st, tracker.ErrInvalidTransition)
	case st != tracker.StateOpen:
		return nil
	}

	allowed, outcome := tracker.WithResourceValue(meta, func(_ view.Handle, vm any) (bool, error) {
		if g, ok := vm.(view.CloseGuard); ok {
			return g.CanClose(ctx), nil
		}
		return true, nil
	})
	if outcome == tracker.OK && !allowed {
		return fmt.Errorf("close %s: %w", rid, ErrCloseVetoed)
	}

	var errs error
	for _, nested := range s.nestedUnder(rid) {
		errs = multierr.Append(errs, s.CloseResource(ctx, nested))
	}
	if errs != nil {
		return fmt.Errorf("close nested windows of %s: %w", rid, errs)
	}
	if !meta.BeginClose() {
		return nil
	}
	var viewErr error
	meta.WithResource(func(v view.Handle, _ any) error {
		viewErr = v.Close(ctx)
		return viewErr
	})
	return s.finishClose(ctx, meta, viewErr)
}

// ResourceClosed records that the view of rid was closed outside the
// session, for example by the user. The view is not closed again.
func (s *Session) ResourceClosed(ctx context.Context, rid id.ResourceID) error {
	if err := s.checkUsable("resource closed"); err != nil {
		return err
	}
	meta, err := s.owned(rid)
	if err != nil {
		return err
	}
	if !meta.BeginClose() {
		return nil
	}
	return s.finishClose(ctx, meta, nil)
}

// ActivateResource brings an open window to the front.
func (s *Session) ActivateResource(ctx context.Context, rid id.ResourceID) error {
	if err := s.checkUsable("activate resource"); err != nil {
		return err
	}
	meta, err := s.owned(rid)
	if err != nil {
		return err
	}
	var activateErr error
	switch meta.WithResource(func(v view.Handle, _ any) error {
		activateErr = v.Activate(ctx)
		return activateErr
	}) {
	case tracker.NotAlive:
		return fmt.Errorf("activate %s: %w", rid, ErrResourceNotAlive)
	case tracker.CallbackFailed:
		return fmt.Errorf("activate %s: %w", rid, activateErr)
	}
	return nil
}

func (s *Session) nestedUnder(parent id.ResourceID) []id.ResourceID {
	var out []id.ResourceID
	for _, m := range s.Resources() {
		if p, ok := m.ParentID(); ok && p == parent {
			out = append(out, m.ID())
		}
	}
	return out
}

// finishClose completes a close started with BeginClose and runs the
// auto-close check.
func (s *Session) finishClose(ctx context.Context, meta *tracker.Metadata, viewErr error) error {
	_, handleErr := meta.SetClosed()
	s.manager.tracker.Unregister(meta.ID())
	s.manager.metrics.IncResourcesClosed()
	s.logger.Debug("Window closed", logging.Resource(meta.ID()))

	err := multierr.Combine(viewErr, handleErr)
	if s.resourceRemoved(meta.ID()) {
		var c cascade
		err = multierr.Append(err, s.autoClose(ctx, &c))
		s.manager.flush(&c)
	}
	return err
}

// resourceRemoved forgets rid and reports whether the session must now
// auto-close. The emptiness check and the claim on disposal happen in one
// critical section so concurrent last closes trigger exactly one disposal.
func (s *Session) resourceRemoved(rid id.ResourceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, had := s.resources[rid]
	delete(s.resources, rid)
	return had && s.claimAutoClose()
}

// childRemoved forgets a disposed child and runs the auto-close check.
func (s *Session) childRemoved(ctx context.Context, sid id.SessionID, c *cascade) {
	s.mu.Lock()
	_, had := s.children[sid]
	delete(s.children, sid)
	trigger := had && s.claimAutoClose()
	s.mu.Unlock()

	if trigger {
		if err := s.autoClose(ctx, c); err != nil {
			s.logger.Warn("Auto-close after child disposal failed", logging.Session(s.id), zap.Error(err))
		}
	}
}

// claimAutoClose must be called with s.mu held.
func (s *Session) claimAutoClose() bool {
	if !s.autoCloseWhenEmpty || s.disposing || s.disposed {
		return false
	}
	if len(s.resources) > 0 || len(s.children) > 0 {
		return false
	}
	s.disposing = true
	return true
}

func (s *Session) autoClose(ctx context.Context, c *cascade) error {
	s.manager.metrics.IncAutoCloses()
	s.logger.Debug("Session empty, auto-closing", logging.Session(s.id))
	return s.dispose(ctx, c)
}

// addChild links c under s unless s is being disposed.
func (s *Session) addChild(c *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposing || s.disposed {
		return false
	}
	s.children[c.id] = c
	return true
}

// Dispose tears the session down: child sessions first, then windows still
// being opened are awaited, then its resources are closed, then auto-save,
// dispose hooks and finally the session scope. It is idempotent. A call made
// while another disposal runs waits for it and returns nil. Cleanup failures
// are logged and returned together; they never stop later steps.
//
// EventSessionClosed for every session torn down by this call is published
// after the whole cascade finished, so subscribers may close other sessions.
// Dispose must not be called on a session from its own dispose hook or from
// the Initialize of one of its windows.
func (s *Session) Dispose(ctx context.Context) error {
	var c cascade
	err := s.disposeIn(ctx, &c)
	s.manager.flush(&c)
	return err
}

// disposeIn claims the disposal of s for c, or waits for the one in progress.
func (s *Session) disposeIn(ctx context.Context, c *cascade) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	if s.disposing {
		s.mu.Unlock()
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.disposing = true
	s.mu.Unlock()
	return s.dispose(ctx, c)
}

// dispose runs the teardown; the caller must have set s.disposing.
func (s *Session) dispose(ctx context.Context, c *cascade) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	var errs error

	for _, child := range s.Children() {
		errs = multierr.Append(errs, child.disposeIn(ctx, c))
	}
	// No open can start once disposing is set, so the wait is bounded by the
	// opens already running.
	s.opening.Wait()
	for _, rid := range s.ResourceIDs() {
		errs = multierr.Append(errs, s.forceClose(ctx, rid))
	}
	if s.autoSave {
		if err := s.save(ctx); err != nil {
			s.manager.metrics.RecordCleanupError("save")
			s.logger.Error("Auto-save failed", logging.Session(s.id), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	for _, hook := range s.onDispose {
		if err := s.runHook(ctx, hook); err != nil {
			s.manager.metrics.RecordCleanupError("hook")
			s.logger.Warn("Dispose hook failed", logging.Session(s.id), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	if err := s.handle.Dispose(); err != nil {
		s.manager.metrics.RecordCleanupError("scope")
		errs = multierr.Append(errs, err)
	}

	s.mu.Lock()
	s.resources = make(map[id.ResourceID]struct{})
	s.children = make(map[id.SessionID]*Session)
	s.disposed = true
	s.err = errs
	announced := s.announced
	close(s.done)
	s.mu.Unlock()

	s.manager.sessionClosed(s, errs, time.Since(start), announced, c)
	if s.parent != nil {
		s.parent.childRemoved(ctx, s.id, c)
	}
	return errs
}

// forceClose closes a resource during disposal regardless of its close
// guard. A resource that never opened is faulted instead.
func (s *Session) forceClose(ctx context.Context, rid id.ResourceID) error {
	meta, ok := s.manager.tracker.TryGet(rid)
	if !ok {
		s.mu.Lock()
		delete(s.resources, rid)
		s.mu.Unlock()
		return nil
	}

	var viewErr error
	closeView := func(v view.Handle, _ any) error {
		viewErr = v.Close(ctx)
		return viewErr
	}
	var (
		closed    bool
		handleErr error
	)
	if meta.State() == tracker.StateCreating {
		meta.WithResource(closeView)
		_, handleErr = meta.Fault(ErrUseAfterDispose)
	} else {
		meta.BeginClose()
		meta.WithResource(closeView)
		closed, handleErr = meta.SetClosed()
	}
	s.manager.tracker.Unregister(rid)
	s.mu.Lock()
	delete(s.resources, rid)
	s.mu.Unlock()

	if closed {
		s.manager.metrics.IncResourcesClosed()
	}
	err := multierr.Combine(viewErr, handleErr)
	if err != nil {
		s.manager.metrics.RecordCleanupError("resource")
		s.logger.Warn("Resource cleanup failed", logging.Session(s.id), logging.Resource(rid), zap.Error(err))
	}
	return err
}

func (s *Session) save(ctx context.Context) error {
	uow, err := scope.Resolve[persistence.UnitOfWork](s.handle.Scope())
	if err != nil {
		return &SaveFailedError{SessionID: s.id, Err: err}
	}
	n, err := uow.SaveChanges(ctx)
	if err != nil {
		return &SaveFailedError{SessionID: s.id, Err: err}
	}
	s.logger.Debug("Session changes saved", logging.Session(s.id), zap.Int("changes", n))
	return nil
}

func (s *Session) runHook(ctx context.Context, hook DisposeHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{SessionID: s.id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := hook(ctx, s); err != nil {
		return &HookError{SessionID: s.id, Err: err}
	}
	return nil
}

func sortByCreation(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})
}
