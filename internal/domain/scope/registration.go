package scope

import (
	"fmt"
	"reflect"
)

// Lifetime controls how many instances a registration produces.
type Lifetime int

const (
	// Transient builds a new instance on every resolve.
	Transient Lifetime = iota
	// Singleton builds one instance in the scope that registered it.
	Singleton
	// Scoped builds one instance per concrete scope that resolves it.
	Scoped
	// Shared builds one instance per nearest enclosing scope whose tag has the
	// registration's matching key.
	Shared
)

func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// Factory builds an instance, resolving dependencies through r.
type Factory func(r Resolver) (any, error)

// Module installs registrations into a container.
type Module interface {
	Install(c *Container) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(c *Container) error

// Install calls f.
func (f ModuleFunc) Install(c *Container) error { return f(c) }

// NewModule groups registrations under a name used in error messages.
func NewModule(name string, items ...Module) Module {
	return ModuleFunc(func(c *Container) error {
		for _, item := range items {
			if err := item.Install(c); err != nil {
				return fmt.Errorf("module %s: %w", name, err)
			}
		}
		return nil
	})
}

// Registration binds a type to a factory and lifetime. It is itself a Module.
type Registration struct {
	typ      reflect.Type
	factory  Factory
	lifetime Lifetime
	matchKey string
	external bool
}

// Type returns the registered service type.
func (r Registration) Type() reflect.Type { return r.typ }

// Lifetime returns the registration lifetime.
func (r Registration) Lifetime() Lifetime { return r.lifetime }

// Install registers r in c, replacing any earlier registration of the same type in c.
func (r Registration) Install(c *Container) error {
	if r.typ == nil || r.factory == nil {
		return fmt.Errorf("incomplete registration")
	}
	return c.register(r)
}

// Provide registers T with the given lifetime. Use ProvideShared for Shared.
func Provide[T any](factory func(r Resolver) (T, error), lifetime Lifetime) Registration {
	return Registration{
		typ:      reflect.TypeFor[T](),
		factory:  wrap(factory),
		lifetime: lifetime,
	}
}

// ProvideShared registers T as shared within the nearest scope matching tag.
func ProvideShared[T any](factory func(r Resolver) (T, error), tag Tag) Registration {
	return Registration{
		typ:      reflect.TypeFor[T](),
		factory:  wrap(factory),
		lifetime: Shared,
		matchKey: tag.MatchingKey(),
	}
}

// Instance registers an externally owned value. The container never disposes it.
func Instance[T any](v T) Registration {
	return Registration{
		typ:      reflect.TypeFor[T](),
		factory:  func(Resolver) (any, error) { return v, nil },
		lifetime: Singleton,
		external: true,
	}
}

func wrap[T any](factory func(r Resolver) (T, error)) Factory {
	if factory == nil {
		return nil
	}
	return func(r Resolver) (any, error) {
		v, err := factory(r)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}
