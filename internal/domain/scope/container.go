package scope

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
)

// ErrScopeDisposed is returned when resolving from, or creating a child of, a disposed scope.
var ErrScopeDisposed = errors.New("scope is disposed")

// Disposer is implemented by instances that release resources when their scope ends.
// Instances implementing io.Closer are disposed through Close.
type Disposer interface {
	Dispose() error
}

// Resolver produces typed instances.
type Resolver interface {
	ResolveType(t reflect.Type) (any, error)
	Tag() Tag
}

// ResolutionError reports a type that could not be resolved in a scope chain.
type ResolutionError struct {
	Type   reflect.Type
	Scope  Tag
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %v in scope %s: %s", e.Type, e.Scope, e.Reason)
}

// Container is one node of the lifetime scope tree. It owns the instances it
// caches and every child scope it created.
type Container struct {
	tag    Tag
	parent *Container
	logger *logging.Logger

	mu        sync.Mutex
	regs      map[reflect.Type]Registration // Protected by mu
	instances map[reflect.Type]any          // Protected by mu
	owned     []any                         // Protected by mu, creation order
	children  map[*Container]struct{}       // Protected by mu
	disposed  bool                          // Protected by mu

	flight singleflight.Group
}

// NewRoot creates the application root scope.
func NewRoot(logger *logging.Logger, modules ...Module) (*Container, error) {
	c := newContainer(Root(), nil, logging.OrNop(logger))
	if err := c.install(modules); err != nil {
		return nil, err
	}
	return c, nil
}

func newContainer(tag Tag, parent *Container, logger *logging.Logger) *Container {
	return &Container{
		tag:       tag,
		parent:    parent,
		logger:    logger,
		regs:      make(map[reflect.Type]Registration),
		instances: make(map[reflect.Type]any),
		children:  make(map[*Container]struct{}),
	}
}

// Tag returns the scope tag
func (c *Container) Tag() Tag { return c.tag }

// Parent returns the enclosing scope, nil for the root
func (c *Container) Parent() *Container { return c.parent }

// IsDisposed reports whether Dispose has run
func (c *Container) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// BeginChildScope creates a nested scope with extra registrations.
func (c *Container) BeginChildScope(tag Tag, modules ...Module) (*Container, error) {
	child := newContainer(tag, c, c.logger)
	if err := child.install(modules); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrScopeDisposed
	}
	c.children[child] = struct{}{}
	return child, nil
}

// Register installs modules into an existing scope.
func (c *Container) Register(modules ...Module) error {
	return c.install(modules)
}

func (c *Container) install(modules []Module) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m.Install(c); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) register(r Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrScopeDisposed
	}
	c.regs[r.typ] = r
	return nil
}

// IsRegistered reports whether t is registered anywhere in the scope chain.
func (c *Container) IsRegistered(t reflect.Type) bool {
	_, owner := c.lookup(t)
	return owner != nil
}

// ResolveType resolves an instance of t.
func (c *Container) ResolveType(t reflect.Type) (any, error) {
	return c.resolve(t, nil)
}

func (c *Container) resolve(t reflect.Type, path []reflect.Type) (any, error) {
	for _, p := range path {
		if p == t {
			return nil, &ResolutionError{Type: t, Scope: c.tag, Reason: "dependency cycle"}
		}
	}
	if c.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	reg, registrant := c.lookup(t)
	if registrant == nil {
		return nil, &ResolutionError{Type: t, Scope: c.tag, Reason: "not registered in scope chain"}
	}
	path = append(path[:len(path):len(path)], t)

	switch reg.lifetime {
	case Transient:
		v, err := reg.factory(&resolution{scope: c, path: path})
		if err != nil {
			return nil, fmt.Errorf("construct %v: %w", t, err)
		}
		if err := c.adopt(v, reg.external); err != nil {
			return nil, err
		}
		return v, nil
	case Singleton:
		return registrant.cached(t, reg, path)
	case Scoped:
		return c.cached(t, reg, path)
	case Shared:
		owner := c.nearest(reg.matchKey)
		if owner == nil {
			return nil, &ResolutionError{
				Type:   t,
				Scope:  c.tag,
				Reason: fmt.Sprintf("no enclosing scope matches %q", reg.matchKey),
			}
		}
		return owner.cached(t, reg, path)
	default:
		return nil, &ResolutionError{Type: t, Scope: c.tag, Reason: "unknown lifetime " + reg.lifetime.String()}
	}
}

// lookup walks up the chain and returns the closest registration of t.
func (c *Container) lookup(t reflect.Type) (Registration, *Container) {
	for s := c; s != nil; s = s.parent {
		s.mu.Lock()
		reg, ok := s.regs[t]
		s.mu.Unlock()
		if ok {
			return reg, s
		}
	}
	return Registration{}, nil
}

// nearest returns the closest scope (self included) whose tag has key.
func (c *Container) nearest(key string) *Container {
	for s := c; s != nil; s = s.parent {
		if s.tag.MatchingKey() == key {
			return s
		}
	}
	return nil
}

// cached returns the instance of t owned by c, building it at most once.
// The factory runs without c.mu held so it can resolve its own dependencies.
func (c *Container) cached(t reflect.Type, reg Registration, path []reflect.Type) (any, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrScopeDisposed
	}
	if v, ok := c.instances[t]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(typeKey(t), func() (any, error) {
		c.mu.Lock()
		if v, ok := c.instances[t]; ok {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()

		v, err := reg.factory(&resolution{scope: c, path: path})
		if err != nil {
			return nil, fmt.Errorf("construct %v: %w", t, err)
		}

		c.mu.Lock()
		if c.disposed {
			c.mu.Unlock()
			if !reg.external {
				_ = disposeValue(v)
			}
			return nil, ErrScopeDisposed
		}
		c.instances[t] = v
		if !reg.external && isDisposable(v) {
			c.owned = append(c.owned, v)
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// adopt takes ownership of a transient instance.
func (c *Container) adopt(v any, external bool) error {
	if external || !isDisposable(v) {
		return nil
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		_ = disposeValue(v)
		return ErrScopeDisposed
	}
	c.owned = append(c.owned, v)
	c.mu.Unlock()
	return nil
}

// Dispose disposes every child scope, then every owned instance in reverse
// creation order, then detaches from the parent. Calling it again is a no-op.
func (c *Container) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	children := make([]*Container, 0, len(c.children))
	for child := range c.children {
		children = append(children, child)
	}
	owned := c.owned
	c.owned = nil
	c.instances = make(map[reflect.Type]any)
	c.children = make(map[*Container]struct{})
	c.mu.Unlock()

	var errs error
	for _, child := range children {
		errs = multierr.Append(errs, child.Dispose())
	}
	for i := len(owned) - 1; i >= 0; i-- {
		if err := disposeValue(owned[i]); err != nil {
			c.logger.Warn("Failed to dispose scoped instance",
				zap.Stringer("scope", c.tag),
				zap.String("type", fmt.Sprintf("%T", owned[i])),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}

	if c.parent != nil {
		c.parent.mu.Lock()
		delete(c.parent.children, c)
		c.parent.mu.Unlock()
	}
	return errs
}

// ChildCount returns the number of live child scopes
func (c *Container) ChildCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}

// resolution threads the dependency path through nested factory calls.
type resolution struct {
	scope *Container
	path  []reflect.Type
}

func (r *resolution) ResolveType(t reflect.Type) (any, error) { return r.scope.resolve(t, r.path) }
func (r *resolution) Tag() Tag                                 { return r.scope.tag }

// Resolve resolves T from r.
func Resolve[T any](r Resolver) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	v, err := r.ResolveType(t)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Type: t, Scope: r.Tag(), Reason: fmt.Sprintf("factory returned %T", v)}
	}
	return typed, nil
}

// IsRegistered reports whether T can be resolved from c's chain.
func IsRegistered[T any](c *Container) bool {
	return c.IsRegistered(reflect.TypeFor[T]())
}

func isDisposable(v any) bool {
	switch v.(type) {
	case Disposer, io.Closer:
		return true
	}
	return false
}

func disposeValue(v any) error {
	switch d := v.(type) {
	case Disposer:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	}
	return nil
}

func typeKey(t reflect.Type) string {
	return fmt.Sprintf("%v#%p", t, t)
}
