// Package scope provides the lifetime scope tree that sessions and windows
// are built on.
//
// Components:
//   - Tag: immutable scope label (category + optional name) with a matching key
//   - Container: a scope node owning registrations, cached instances and child scopes
//   - Handle: single-owner wrapper whose Dispose tears down one scope subtree
//
// Lifetimes:
//   - Transient: new instance per resolve, owned by the resolving scope
//   - Singleton: one instance in the registering scope
//   - Scoped: one instance per resolving scope
//   - Shared: one instance per nearest enclosing scope whose tag matching key
//     equals the registration's (e.g. every window in a workflow session sees
//     the same instance, two workflow sessions see different ones)
//
// Example Usage:
//
//	root, _ := scope.NewRoot(logger, scope.ProvideShared(NewCart, scope.Workflow("order")))
//	wf, _ := root.BeginChildScope(scope.Workflow("order"))
//	win, _ := wf.BeginChildScope(scope.Window("checkout"))
//	cart, err := scope.Resolve[*Cart](win)
package scope
