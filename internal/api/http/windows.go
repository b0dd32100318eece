package http

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// OpenWindowRequest opens a window of a registered kind
type OpenWindowRequest struct {
	Kind     string `json:"kind" binding:"required"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

// OpenWindow opens a window in a session
func (h *Handlers) OpenWindow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req OpenWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	open, ok := h.openers[req.Kind]
	if !ok {
		badRequest(c, fmt.Errorf("unknown window kind %q (known: %v)", req.Kind, h.kinds()))
		return
	}

	var opts []session.OpenOption
	if req.Name != "" {
		opts = append(opts, session.WithName(req.Name))
	}
	if req.ParentID != "" {
		parent, err := id.ParseResourceID(req.ParentID)
		if err != nil {
			badRequest(c, fmt.Errorf("parent_id: %w", err))
			return
		}
		opts = append(opts, session.WithParentResource(parent))
	}

	rid, err := open(c.Request.Context(), s, opts...)
	if err != nil {
		fail(c, err)
		return
	}
	meta, err := h.manager.Tracker().Get(rid)
	if err != nil {
		// Closed again before we could report it.
		c.JSON(http.StatusCreated, gin.H{"id": rid.String()})
		return
	}
	c.JSON(http.StatusCreated, newResourceView(meta))
}

// CloseWindow closes a window, honouring its view-model's close guard
func (h *Handlers) CloseWindow(c *gin.Context) {
	h.withWindow(c, func(s *session.Session, rid id.ResourceID) error {
		return s.CloseResource(c.Request.Context(), rid)
	})
}

// ActivateWindow brings a window to the front
func (h *Handlers) ActivateWindow(c *gin.Context) {
	h.withWindow(c, func(s *session.Session, rid id.ResourceID) error {
		return s.ActivateResource(c.Request.Context(), rid)
	})
}

// WindowClosed reports a window closed by the view layer
func (h *Handlers) WindowClosed(c *gin.Context) {
	h.withWindow(c, func(s *session.Session, rid id.ResourceID) error {
		return s.ResourceClosed(c.Request.Context(), rid)
	})
}

func (h *Handlers) withWindow(c *gin.Context, fn func(s *session.Session, rid id.ResourceID) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	rid, err := id.ParseResourceID(c.Param("rid"))
	if err != nil {
		badRequest(c, fmt.Errorf("resource id: %w", err))
		return
	}
	if err := fn(s, rid); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"session_id":  s.ID().String(),
		"resource_id": rid.String(),
	})
}

func (h *Handlers) kinds() []string {
	kinds := make([]string, 0, len(h.openers))
	for k := range h.openers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
