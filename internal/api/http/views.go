package http

import (
	"time"

	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
)

// SessionView is the JSON shape of a session
type SessionView struct {
	ID                 string         `json:"id"`
	Tag                string         `json:"tag"`
	ParentID           string         `json:"parent_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	AutoSave           bool           `json:"auto_save"`
	AutoCloseWhenEmpty bool           `json:"auto_close_when_empty"`
	Children           []string       `json:"children"`
	Resources          []ResourceView `json:"resources"`
}

// ResourceView is the JSON shape of a tracked resource
type ResourceView struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id,omitempty"`
	ParentID  string        `json:"parent_id,omitempty"`
	Name      string        `json:"name"`
	State     tracker.State `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
}

func newSessionView(s *session.Session) SessionView {
	v := SessionView{
		ID:                 s.ID().String(),
		Tag:                s.Tag().String(),
		CreatedAt:          s.CreatedAt(),
		AutoSave:           s.AutoSave(),
		AutoCloseWhenEmpty: s.AutoCloseWhenEmpty(),
		Children:           []string{},
		Resources:          []ResourceView{},
	}
	if parent, ok := s.ParentID(); ok {
		v.ParentID = parent.String()
	}
	for _, c := range s.Children() {
		v.Children = append(v.Children, c.ID().String())
	}
	for _, m := range s.Resources() {
		v.Resources = append(v.Resources, newResourceView(m))
	}
	return v
}

func newResourceView(m *tracker.Metadata) ResourceView {
	v := ResourceView{
		ID:        m.ID().String(),
		Name:      m.Name(),
		State:     m.State(),
		CreatedAt: m.CreatedAt(),
	}
	if sid, ok := m.SessionID(); ok {
		v.SessionID = sid.String()
	}
	if parent, ok := m.ParentID(); ok {
		v.ParentID = parent.String()
	}
	return v
}
