package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/lifescope/internal/domain/persistence"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// Stats is a point-in-time summary of the manager
type Stats struct {
	Sessions      int            `json:"sessions"`
	RootSessions  int            `json:"root_sessions"`
	ByCategory    map[string]int `json:"by_category"`
	Resources     int            `json:"resources"`
	OpenResources int            `json:"open_resources"`
}

// Manager is the registry of live sessions. It implements
// tracker.Directory so resources can only be registered for active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session

	root    *scope.Container
	tracker *tracker.Tracker
	views   view.Factory
	events  *bus
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewManager creates a manager whose sessions are child scopes of root.
func NewManager(root *scope.Container, tr *tracker.Tracker, views view.Factory, logger *logging.Logger) *Manager {
	logger = logging.OrNop(logger).Named("session")
	m := &Manager{
		sessions: make(map[id.SessionID]*Session),
		root:     root,
		tracker:  tr,
		views:    views,
		events:   &bus{logger: logger},
		logger:   logger,
	}
	tr.AttachDirectory(m)
	return m
}

// WithMetrics enables Prometheus instrumentation
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	m.events.metrics = metrics
	return m
}

// Tracker returns the resource tracker shared by all sessions
func (m *Manager) Tracker() *tracker.Tracker { return m.tracker }

// Root returns the root scope
func (m *Manager) Root() *scope.Container { return m.root }

// CreateSession starts a builder for a root-level session.
func (m *Manager) CreateSession(tag scope.Tag) *Builder {
	return m.newBuilder(tag, nil)
}

// Subscribe registers h for lifecycle events and returns a function that
// removes it. Handlers run synchronously after the state change is visible.
// Close events arrive after the disposal that produced them returned, in
// teardown order, so a handler may close or create sessions itself.
func (m *Manager) Subscribe(h Handler) (unsubscribe func()) {
	return m.events.subscribe(h)
}

// GetSession returns a registered session
func (m *Manager) GetSession(sid id.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sid]
	return s, ok
}

// IsSessionActive reports whether sid is registered and not being disposed.
func (m *Manager) IsSessionActive(sid id.SessionID) bool {
	s, ok := m.GetSession(sid)
	return ok && !s.IsDisposed()
}

// Sessions returns every registered session, oldest first.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sortByCreation(out)
	return out
}

// ChildSessions returns the direct children of parent.
func (m *Manager) ChildSessions(parent id.SessionID) []*Session {
	s, ok := m.GetSession(parent)
	if !ok {
		return nil
	}
	return s.Children()
}

// CloseSession disposes sid and its subtree.
func (m *Manager) CloseSession(ctx context.Context, sid id.SessionID) error {
	s, ok := m.GetSession(sid)
	if !ok {
		return fmt.Errorf("%s: %w", sid, ErrSessionNotFound)
	}
	return s.Dispose(ctx)
}

// CloseAllSessions disposes every root session concurrently. Every session
// is attempted; the returned error aggregates all failures.
func (m *Manager) CloseAllSessions(ctx context.Context) error {
	var roots []*Session
	for _, s := range m.Sessions() {
		if s.parent == nil {
			roots = append(roots, s)
		}
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, s := range roots {
		g.Go(func() error {
			if err := s.Dispose(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("All sessions closed", zap.Int("roots", len(roots)), zap.Error(errs))
	return errs
}

// Stats summarises live sessions and tracked resources
func (m *Manager) Stats() Stats {
	st := Stats{ByCategory: make(map[string]int)}
	for _, s := range m.Sessions() {
		st.Sessions++
		if s.parent == nil {
			st.RootSessions++
		}
		st.ByCategory[s.tag.Category().String()]++
	}
	for _, meta := range m.tracker.Snapshot() {
		st.Resources++
		if meta.IsOpened() {
			st.OpenResources++
		}
	}
	return st
}

func (m *Manager) build(ctx context.Context, b *Builder) (*Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parentScope := m.root
	if b.parent != nil {
		if err := b.parent.checkUsable("create child"); err != nil {
			return nil, err
		}
		parentScope = b.parent.Scope()
	}
	c, err := parentScope.BeginChildScope(b.tag, b.modules...)
	if err != nil {
		return nil, fmt.Errorf("create %s session: %w", b.tag, err)
	}
	if b.autoSave && !scope.IsRegistered[persistence.UnitOfWork](c) {
		_ = c.Dispose()
		return nil, fmt.Errorf("create %s session: %w", b.tag, ErrAutoSaveUnavailable)
	}

	s := &Session{
		id:                 id.NewSessionID(),
		tag:                b.tag,
		parent:             b.parent,
		manager:            m,
		handle:             scope.NewHandle(c),
		createdAt:          time.Now(),
		autoSave:           b.autoSave,
		autoCloseWhenEmpty: b.autoClose,
		onDispose:          append([]DisposeHook(nil), b.hooks...),
		resources:          make(map[id.ResourceID]struct{}),
		children:           make(map[id.SessionID]*Session),
		created:            make(chan struct{}),
		done:               make(chan struct{}),
	}
	s.logger = m.logger.With(logging.Session(s.id), zap.Stringer("tag", s.tag))

	// Link first so a parent disposal either sees the child or refuses it.
	if b.parent != nil && !b.parent.addChild(s) {
		if err := s.handle.Dispose(); err != nil {
			s.logger.Warn("Session scope disposal failed", zap.Error(err))
		}
		return nil, fmt.Errorf("create child of %s: %w", b.parent.id, ErrUseAfterDispose)
	}
	if !m.register(s) {
		// The parent started disposing after linking; its cascade owns s.
		return nil, fmt.Errorf("create child of %s: %w", b.parent.id, ErrUseAfterDispose)
	}

	m.metrics.SessionCreated(s.tag.Category().String())
	s.logger.Info("Session created")
	m.events.publish(m.event(EventSessionCreated, s, nil))
	close(s.created)
	return s, nil
}

// register makes s visible unless a disposal already claimed it. Lock order
// is session then manager.
func (m *Manager) register(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposing || s.disposed {
		return false
	}
	s.announced = true
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return true
}

// sessionClosed removes s from the registry once its disposal completed and
// queues its close event on c. Sessions that were never announced leave no
// trace.
func (m *Manager) sessionClosed(s *Session, err error, took time.Duration, announced bool, c *cascade) {
	if !announced {
		s.logger.Debug("Session discarded before creation completed", zap.Error(err))
		return
	}
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.metrics.SessionClosed(s.tag.Category().String(), took)
	if err != nil {
		s.logger.Warn("Session closed with cleanup errors", zap.Duration("took", took), zap.Error(err))
	} else {
		s.logger.Info("Session closed", zap.Duration("took", took))
	}
	c.add(s, m.event(EventSessionClosed, s, err))
}

// flush publishes the close events of c. A session's close event never
// precedes its create event.
func (m *Manager) flush(c *cascade) {
	for _, cs := range c.closed {
		<-cs.session.created
		m.events.publish(cs.event)
	}
	c.closed = nil
}

func (m *Manager) event(t EventType, s *Session, err error) Event {
	parent, _ := s.ParentID()
	return Event{
		ID:        id.NewEventID(),
		Type:      t,
		SessionID: s.id,
		ParentID:  parent,
		Tag:       s.tag,
		At:        time.Now(),
		Err:       err,
	}
}
