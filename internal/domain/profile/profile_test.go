package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/lifescope/internal/domain/persistence"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
)

const sample = `
profiles:
  - name: order-entry
    tag: workflow:order
    auto_close_when_empty: true
  - name: orders-db
    tag: database:orders
    auto_save: true
    modules: [orders-store]
`

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	root, err := scope.NewRoot(nil)
	require.NoError(t, err)
	return session.NewManager(root, tracker.New(nil), view.NewHeadlessFactory(), nil)
}

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"order-entry", "orders-db"}, set.Names())

	p, err := set.Get("orders-db")
	require.NoError(t, err)
	assert.Equal(t, scope.Database("orders"), p.ScopeTag())
	assert.True(t, p.AutoSave)
	assert.Equal(t, []string{"orders-store"}, p.Modules)

	_, err = set.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestParseRejectsInvalidProfiles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "profiles:\n  - name: a\n    tag: workflow:a\n    colour: red\n"},
		{"missing name", "profiles:\n  - tag: workflow:a\n"},
		{"duplicate", "profiles:\n  - name: a\n    tag: workflow:a\n  - name: a\n    tag: workflow:b\n"},
		{"bad category", "profiles:\n  - name: a\n    tag: galaxy:a\n"},
		{"custom without name", "profiles:\n  - name: a\n    tag: custom\n"},
		{"window tag", "profiles:\n  - name: a\n    tag: window:main\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set.Names(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBuilderAppliesProfile(t *testing.T) {
	ctx := context.Background()
	set, err := Parse([]byte(sample))
	require.NoError(t, err)
	mgr := newManager(t)
	store := persistence.NewStore()
	catalog := Catalog{
		"orders-store": scope.Provide(func(scope.Resolver) (persistence.UnitOfWork, error) {
			return persistence.NewMemoryUnit(store), nil
		}, scope.Scoped),
	}

	b, err := set.Builder(mgr, "orders-db", catalog)
	require.NoError(t, err)
	s, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, scope.Database("orders"), s.Tag())
	assert.True(t, s.AutoSave())

	b, err = set.ChildBuilder(s, "order-entry", catalog)
	require.NoError(t, err)
	child, err := b.Build(ctx)
	require.NoError(t, err)
	assert.True(t, child.AutoCloseWhenEmpty())
	parent, ok := child.ParentID()
	require.True(t, ok)
	assert.Equal(t, s.ID(), parent)
}

func TestBuilderFailsOnUnknownModule(t *testing.T) {
	set, err := Parse([]byte(sample))
	require.NoError(t, err)

	b, err := set.Builder(newManager(t), "orders-db", Catalog{})
	require.NoError(t, err)
	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, ErrUnknownModule)
}
