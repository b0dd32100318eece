package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// CreateSessionRequest creates a session from a tag or a profile. Exactly one
// of Tag and Profile must be set.
type CreateSessionRequest struct {
	Tag                string `json:"tag"`
	Profile            string `json:"profile"`
	ParentID           string `json:"parent_id"`
	AutoCloseWhenEmpty bool   `json:"auto_close_when_empty"`
}

// ListSessions lists all live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.manager.Sessions()
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": views,
		"stats":    h.manager.Stats(),
	})
}

// GetSession gets details of a specific session
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionView(s))
}

// ListChildren lists the direct child sessions
func (h *Handlers) ListChildren(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	children := s.Children()
	views := make([]SessionView, 0, len(children))
	for _, child := range children {
		views = append(views, newSessionView(child))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

// CreateSession creates a root or child session
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if (req.Tag == "") == (req.Profile == "") {
		badRequest(c, errors.New("exactly one of tag and profile is required"))
		return
	}

	var parent *session.Session
	if req.ParentID != "" {
		pid, err := id.ParseSessionID(req.ParentID)
		if err != nil {
			badRequest(c, fmt.Errorf("parent_id: %w", err))
			return
		}
		p, ok := h.manager.GetSession(pid)
		if !ok {
			fail(c, fmt.Errorf("parent %s: %w", pid, session.ErrSessionNotFound))
			return
		}
		parent = p
	}

	var tag scope.Tag
	if req.Tag != "" {
		t, err := scope.ParseTag(req.Tag)
		if err != nil {
			badRequest(c, fmt.Errorf("tag %q: %w", req.Tag, err))
			return
		}
		tag = t
	}

	b, err := h.builder(parent, req.Profile, tag)
	if err != nil {
		fail(c, err)
		return
	}
	if req.AutoCloseWhenEmpty {
		b.AutoCloseWhenEmpty()
	}
	s, err := b.Build(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionView(s))
}

func (h *Handlers) builder(parent *session.Session, profileName string, tag scope.Tag) (*session.Builder, error) {
	if profileName != "" {
		if parent != nil {
			return h.profiles.ChildBuilder(parent, profileName, h.catalog)
		}
		return h.profiles.Builder(h.manager, profileName, h.catalog)
	}
	if parent != nil {
		return parent.CreateChild(tag), nil
	}
	return h.manager.CreateSession(tag), nil
}

// CloseSession disposes a session and its subtree. Cleanup errors are
// reported but the session is gone either way.
func (h *Handlers) CloseSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.manager.CloseSession(c.Request.Context(), s.ID()); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			fail(c, err)
			return
		}
		h.logger.Warn("Session closed with errors", logging.Session(s.ID()), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"session_id": s.ID().String(),
			"errors":     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": s.ID().String(),
	})
}

// ListResources lists every tracked resource
func (h *Handlers) ListResources(c *gin.Context) {
	snapshot := h.manager.Tracker().Snapshot()
	views := make([]ResourceView, 0, len(snapshot))
	for _, m := range snapshot {
		views = append(views, newResourceView(m))
	}
	c.JSON(http.StatusOK, gin.H{"resources": views})
}

// session resolves the :id parameter, writing the error response on failure.
func (h *Handlers) session(c *gin.Context) (*session.Session, bool) {
	sid, err := id.ParseSessionID(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Errorf("session id: %w", err))
		return nil, false
	}
	s, ok := h.manager.GetSession(sid)
	if !ok {
		fail(c, fmt.Errorf("%s: %w", sid, session.ErrSessionNotFound))
		return nil, false
	}
	return s, true
}
