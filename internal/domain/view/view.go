package view

import (
	"context"
)

// Handle is a live UI object (window, dialog).
type Handle interface {
	Show(ctx context.Context) error
	Close(ctx context.Context) error
	Activate(ctx context.Context) error
	IsAlive() bool
}

// Factory creates the view for a view-model.
type Factory interface {
	CreateView(ctx context.Context, viewModel any) (Handle, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, viewModel any) (Handle, error)

// CreateView calls f.
func (f FactoryFunc) CreateView(ctx context.Context, viewModel any) (Handle, error) {
	return f(ctx, viewModel)
}

// Initializer is implemented by view-models that need asynchronous setup
// after their view exists and before the window counts as open.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// CloseGuard is implemented by view-models that may veto a user close
// (unsaved changes). Session disposal does not consult it.
type CloseGuard interface {
	CanClose(ctx context.Context) bool
}
