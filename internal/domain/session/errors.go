package session

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

var (
	// ErrUseAfterDispose is returned by every session operation except
	// Dispose once disposal has started.
	ErrUseAfterDispose = errors.New("session is disposed")
	// ErrSessionNotFound is returned for unknown or already closed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrResourceNotFound is returned for resources not owned by the session.
	ErrResourceNotFound = errors.New("resource not found in session")
	// ErrResourceNotAlive is returned when acting on a closed or destroyed window.
	ErrResourceNotAlive = errors.New("resource is not alive")
	// ErrCloseVetoed is returned when a view-model's CanClose refuses a close.
	ErrCloseVetoed = errors.New("close vetoed by view-model")
	// ErrAutoSaveUnavailable is returned by Build when auto-save is requested
	// but no persistence.UnitOfWork is resolvable from the session scope.
	ErrAutoSaveUnavailable = errors.New("auto-save requires a unit of work in scope")
)

// SaveFailedError reports an auto-save failure during disposal. Disposal
// still completes; the error is part of the aggregated Dispose result.
type SaveFailedError struct {
	SessionID id.SessionID
	Err       error
}

func (e *SaveFailedError) Error() string {
	return fmt.Sprintf("auto-save of session %s failed: %v", e.SessionID, e.Err)
}

func (e *SaveFailedError) Unwrap() error { return e.Err }

// HookError reports a dispose hook that failed or panicked.
type HookError struct {
	SessionID id.SessionID
	Err       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("dispose hook of session %s failed: %v", e.SessionID, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
