package session

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// Builder configures a session before it is created. Builders are not safe
// for concurrent use and should not be reused after Build.
type Builder struct {
	manager *Manager
	parent  *Session
	tag     scope.Tag

	modules   []scope.Module
	autoSave  bool
	autoClose bool
	hooks     []DisposeHook
	err       error
}

func (m *Manager) newBuilder(tag scope.Tag, parent *Session) *Builder {
	return &Builder{manager: m, parent: parent, tag: tag}
}

// Tag returns the tag the session will carry
func (b *Builder) Tag() scope.Tag { return b.tag }

// WithModule installs modules into the session scope.
func (b *Builder) WithModule(modules ...scope.Module) *Builder {
	b.modules = append(b.modules, modules...)
	return b
}

// WithService registers a single service in the session scope.
func (b *Builder) WithService(reg scope.Registration) *Builder {
	b.modules = append(b.modules, reg)
	return b
}

// WithAutoSave saves through the scope's persistence.UnitOfWork on disposal.
// Build fails if none is registered.
func (b *Builder) WithAutoSave() *Builder {
	b.autoSave = true
	return b
}

// AutoCloseWhenEmpty disposes the session once it has owned at least one
// resource or child and all of them are gone.
func (b *Builder) AutoCloseWhenEmpty() *Builder {
	b.autoClose = true
	return b
}

// OnDispose adds a hook run during disposal, in registration order.
func (b *Builder) OnDispose(hook DisposeHook) *Builder {
	if hook != nil {
		b.hooks = append(b.hooks, hook)
	}
	return b
}

// Fail makes Build return err. Used by configuration sources that apply
// settings to a builder.
func (b *Builder) Fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Build creates and registers the session.
func (b *Builder) Build(ctx context.Context) (*Session, error) {
	return b.manager.build(ctx, b)
}

// BuildAndOpen builds the session and opens a VM window in it. If the window
// cannot be opened the new session is disposed and the error returned.
func BuildAndOpen[VM any](ctx context.Context, b *Builder, opts ...OpenOption) (*Session, id.ResourceID, error) {
	s, err := b.Build(ctx)
	if err != nil {
		return nil, id.NilResource, err
	}
	rid, err := OpenWindow[VM](ctx, s, opts...)
	if err != nil {
		if derr := s.Dispose(ctx); derr != nil {
			err = fmt.Errorf("%w (dispose: %v)", err, derr)
		}
		return nil, id.NilResource, err
	}
	return s, rid, nil
}
