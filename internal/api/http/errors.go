package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/lifescope/internal/domain/profile"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var resErr *scope.ResolutionError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrResourceNotFound),
		errors.Is(err, tracker.ErrResourceNotFound),
		errors.Is(err, profile.ErrUnknownProfile):
		return http.StatusNotFound
	case errors.Is(err, session.ErrUseAfterDispose),
		errors.Is(err, session.ErrResourceNotAlive):
		return http.StatusGone
	case errors.Is(err, session.ErrCloseVetoed),
		errors.Is(err, tracker.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, scope.ErrInvalidCustomTag),
		errors.Is(err, session.ErrAutoSaveUnavailable),
		errors.Is(err, profile.ErrUnknownModule),
		errors.As(err, &resErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error response.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
