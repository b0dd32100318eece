// Package session manages tagged, nested sessions and the windows they own.
//
// A session is a child scope of the application root (or of another
// session) carrying a scope.Tag. Services registered with a Shared lifetime
// resolve to one instance per nearest enclosing session whose tag matches.
//
// Components:
//   - Manager: registry of live sessions, lifecycle events, bulk shutdown
//   - Builder: fluent session configuration (modules, auto-save, hooks)
//   - Session: owned resources and child sessions, ordered disposal
//
// Disposal Order:
//  1. Dispose child sessions
//  2. Wait for windows still being opened
//  3. Close owned windows and unregister them from the tracker
//  4. Save through the scope's persistence.UnitOfWork when auto-save is on
//  5. Run dispose hooks
//  6. Dispose the session scope
//  7. Remove the session from the manager
//
// Every step runs even if an earlier one fails. Failures are logged and
// returned together from Dispose. EventSessionClosed is published for every
// session of the cascade once the outermost disposal finished, children
// first. A session whose creation failed publishes no events.
//
// Example Usage:
//
//	mgr := session.NewManager(root, tracker.New(logger), views, logger)
//	s, err := mgr.CreateSession(scope.Workflow("order")).
//		WithModule(orderModule).
//		AutoCloseWhenEmpty().
//		Build(ctx)
//	rid, err := session.OpenWindow[*OrderViewModel](ctx, s)
//	err = s.CloseResource(ctx, rid) // disposes s: it is now empty
package session
