package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/lifescope/internal/domain/persistence"
	"github.com/GriffinCanCode/lifescope/internal/domain/profile"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
)

type noteVM struct{}

type stickyVM struct{}

func (stickyVM) CanClose(context.Context) bool { return false }

const profiles = `
profiles:
  - name: orders
    tag: database:orders
    auto_save: true
    modules: [memory]
`

type testAPI struct {
	router  *gin.Engine
	manager *session.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root, err := scope.NewRoot(nil,
		scope.Provide(func(scope.Resolver) (*noteVM, error) { return &noteVM{}, nil }, scope.Transient),
		scope.Provide(func(scope.Resolver) (stickyVM, error) { return stickyVM{}, nil }, scope.Transient),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	tr := tracker.New(nil).WithMetrics(metrics)
	mgr := session.NewManager(root, tr, view.NewHeadlessFactory(), nil).WithMetrics(metrics)

	set, err := profile.Parse([]byte(profiles))
	require.NoError(t, err)
	store := persistence.NewStore()

	h := NewHandlers(Options{
		Manager:  mgr,
		Profiles: set,
		Catalog: profile.Catalog{
			"memory": scope.Provide(func(scope.Resolver) (persistence.UnitOfWork, error) {
				return persistence.NewMemoryUnit(store), nil
			}, scope.Scoped),
		},
		Openers: map[string]Opener{
			"note":   session.OpenWindow[*noteVM],
			"sticky": session.OpenWindow[stickyVM],
		},
		Metrics:  metrics,
		Gatherer: reg,
	})
	router := gin.New()
	router.Use(monitoring.Middleware(metrics))
	h.Register(router)
	return &testAPI{router: router, manager: mgr}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) createSession(t *testing.T, req CreateSessionRequest) SessionView {
	t.Helper()
	w := a.do(t, http.MethodPost, "/sessions", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[SessionView](t, w)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestSessionLifecycle(t *testing.T) {
	api := newTestAPI(t)

	parent := api.createSession(t, CreateSessionRequest{Tag: "workflow:order"})
	assert.Equal(t, "workflow:order", parent.Tag)
	child := api.createSession(t, CreateSessionRequest{Tag: "request:step", ParentID: parent.ID})
	assert.Equal(t, parent.ID, child.ParentID)

	w := api.do(t, http.MethodGet, "/sessions/"+parent.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{child.ID}, decode[SessionView](t, w).Children)

	w = api.do(t, http.MethodGet, "/sessions/"+parent.ID+"/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	children := decode[struct{ Sessions []SessionView }](t, w).Sessions
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	w = api.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct{ Sessions []SessionView }](t, w).Sessions, 2)

	w = api.do(t, http.MethodDelete, "/sessions/"+parent.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, api.manager.Sessions())

	w = api.do(t, http.MethodGet, "/sessions/"+child.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionValidation(t *testing.T) {
	api := newTestAPI(t)
	parent := api.createSession(t, CreateSessionRequest{Tag: "workflow:order"})

	tests := []struct {
		name string
		req  CreateSessionRequest
		want int
	}{
		{"neither tag nor profile", CreateSessionRequest{}, http.StatusBadRequest},
		{"both tag and profile", CreateSessionRequest{Tag: "workflow:a", Profile: "orders"}, http.StatusBadRequest},
		{"unknown category", CreateSessionRequest{Tag: "galaxy:a"}, http.StatusBadRequest},
		{"custom without name", CreateSessionRequest{Tag: "custom"}, http.StatusBadRequest},
		{"malformed parent", CreateSessionRequest{Tag: "workflow:a", ParentID: "nope"}, http.StatusBadRequest},
		{"unknown parent", CreateSessionRequest{Tag: "workflow:a", ParentID: "2f0c4a4e-9a41-4f0e-8a55-0b7b0d3d6f11"}, http.StatusNotFound},
		{"unknown profile", CreateSessionRequest{Profile: "missing"}, http.StatusNotFound},
		{"profile under parent", CreateSessionRequest{Profile: "orders", ParentID: parent.ID}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/sessions", tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateSessionFromProfile(t *testing.T) {
	api := newTestAPI(t)
	s := api.createSession(t, CreateSessionRequest{Profile: "orders", AutoCloseWhenEmpty: true})
	assert.Equal(t, "database:orders", s.Tag)
	assert.True(t, s.AutoSave)
	assert.True(t, s.AutoCloseWhenEmpty)

	w := api.do(t, http.MethodGet, "/profiles", nil)
	assert.Contains(t, w.Body.String(), `"orders"`)
}

func TestWindowLifecycle(t *testing.T) {
	api := newTestAPI(t)
	s := api.createSession(t, CreateSessionRequest{Tag: "workflow:order", AutoCloseWhenEmpty: true})
	base := "/sessions/" + s.ID + "/windows"

	w := api.do(t, http.MethodPost, base, OpenWindowRequest{Kind: "note", Name: "main"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	main := decode[ResourceView](t, w)
	assert.Equal(t, tracker.StateOpen, main.State)
	assert.Equal(t, "main", main.Name)

	w = api.do(t, http.MethodPost, base, OpenWindowRequest{Kind: "note", ParentID: main.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, main.ID, decode[ResourceView](t, w).ParentID)

	w = api.do(t, http.MethodGet, "/resources", nil)
	assert.Len(t, decode[struct{ Resources []ResourceView }](t, w).Resources, 2)

	w = api.do(t, http.MethodPost, base+"/"+main.ID+"/activate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodDelete, base+"/"+main.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The nested window closed with its parent, so the session auto-closed.
	w = api.do(t, http.MethodGet, "/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWindowErrors(t *testing.T) {
	api := newTestAPI(t)
	s := api.createSession(t, CreateSessionRequest{Tag: "workflow:order"})
	base := "/sessions/" + s.ID + "/windows"

	w := api.do(t, http.MethodPost, base, OpenWindowRequest{Kind: "spreadsheet"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "note")

	w = api.do(t, http.MethodPost, base, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodDelete, base+"/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodDelete, base+"/2f0c4a4e-9a41-4f0e-8a55-0b7b0d3d6f11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, base, OpenWindowRequest{Kind: "sticky"})
	require.Equal(t, http.StatusCreated, w.Code)
	sticky := decode[ResourceView](t, w)
	w = api.do(t, http.MethodDelete, base+"/"+sticky.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, base+"/"+sticky.ID+"/closed", nil)
	assert.Equal(t, http.StatusOK, w.Code, "view-reported closes bypass the guard")
}

func TestMetricsEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.createSession(t, CreateSessionRequest{Tag: "workflow:order"})

	w := api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `lifescope_sessions_created_total{category="workflow"} 1`), body)
	assert.Contains(t, body, "lifescope_http_requests_total")

	w = api.do(t, http.MethodGet, "/metrics/json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_sessions":1`)
}
