package scope

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cart struct {
	disposed atomic.Int32
}

func (c *cart) Dispose() error {
	c.disposed.Add(1)
	return nil
}

type clock struct{}

type repo struct {
	closed bool
	log    *[]string
	name   string
}

func (r *repo) Close() error {
	r.closed = true
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	return nil
}

func newCart(Resolver) (*cart, error) { return &cart{}, nil }

func TestResolveUnregisteredType(t *testing.T) {
	root, err := NewRoot(nil)
	require.NoError(t, err)

	_, err = Resolve[*cart](root)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, Root(), resErr.Scope)
}

func TestLifetimes(t *testing.T) {
	root, err := NewRoot(nil,
		Provide(func(Resolver) (*clock, error) { return &clock{}, nil }, Singleton),
		Provide(newCart, Scoped),
	)
	require.NoError(t, err)

	a, err := root.BeginChildScope(Request("a"))
	require.NoError(t, err)
	b, err := root.BeginChildScope(Request("b"))
	require.NoError(t, err)

	ca, _ := Resolve[*clock](a)
	cb, _ := Resolve[*clock](b)
	assert.Same(t, ca, cb, "singleton is shared across scopes")

	sa1, _ := Resolve[*cart](a)
	sa2, _ := Resolve[*cart](a)
	sb, _ := Resolve[*cart](b)
	assert.Same(t, sa1, sa2, "scoped is cached per scope")
	assert.NotSame(t, sa1, sb)
}

func TestTransientIsOwnedByResolvingScope(t *testing.T) {
	root, err := NewRoot(nil, Provide(newCart, Transient))
	require.NoError(t, err)
	child, err := root.BeginChildScope(Window("w"))
	require.NoError(t, err)

	c1, _ := Resolve[*cart](child)
	c2, _ := Resolve[*cart](child)
	assert.NotSame(t, c1, c2)

	require.NoError(t, child.Dispose())
	assert.EqualValues(t, 1, c1.disposed.Load())
	assert.EqualValues(t, 1, c2.disposed.Load())
}

func TestSharedPinsToNearestMatchingScope(t *testing.T) {
	root, err := NewRoot(nil, ProvideShared(newCart, Workflow("order")))
	require.NoError(t, err)

	first, _ := root.BeginChildScope(Workflow("order"))
	w1, _ := first.BeginChildScope(Window("list"))
	w2, _ := first.BeginChildScope(Window("detail"))

	c1, err := Resolve[*cart](w1)
	require.NoError(t, err)
	c2, err := Resolve[*cart](w2)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	second, _ := root.BeginChildScope(Workflow("order"))
	w3, _ := second.BeginChildScope(Window("list"))
	c3, err := Resolve[*cart](w3)
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
}

func TestSharedWithoutMatchingScopeFails(t *testing.T) {
	root, err := NewRoot(nil, ProvideShared(newCart, Workflow("order")))
	require.NoError(t, err)
	other, _ := root.BeginChildScope(Workflow("billing"))

	_, err = Resolve[*cart](other)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Reason, "workflow:order")
}

func TestChildRegistrationsShadowParent(t *testing.T) {
	root, err := NewRoot(nil, Instance("root"))
	require.NoError(t, err)
	child, err := root.BeginChildScope(Request(""), Instance("child"))
	require.NoError(t, err)

	v, _ := Resolve[string](child)
	assert.Equal(t, "child", v)
	v, _ = Resolve[string](root)
	assert.Equal(t, "root", v)
}

func TestDependencyCycleIsReported(t *testing.T) {
	type a struct{}
	type b struct{}
	root, err := NewRoot(nil,
		Provide(func(r Resolver) (*a, error) {
			_, err := Resolve[*b](r)
			return &a{}, err
		}, Scoped),
		Provide(func(r Resolver) (*b, error) {
			_, err := Resolve[*a](r)
			return &b{}, err
		}, Scoped),
	)
	require.NoError(t, err)

	_, err = Resolve[*a](root)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "dependency cycle", resErr.Reason)
}

func TestDisposeCascadesInReverseCreationOrder(t *testing.T) {
	var order []string
	type first struct{ *repo }
	type second struct{ *repo }

	root, err := NewRoot(nil)
	require.NoError(t, err)
	session, err := root.BeginChildScope(Workflow("x"),
		Provide(func(Resolver) (*first, error) { return &first{&repo{log: &order, name: "first"}}, nil }, Scoped),
		Provide(func(Resolver) (*second, error) { return &second{&repo{log: &order, name: "second"}}, nil }, Scoped),
	)
	require.NoError(t, err)
	window, err := session.BeginChildScope(Window("w"),
		Provide(func(Resolver) (*repo, error) { return &repo{log: &order, name: "window"}, nil }, Scoped),
	)
	require.NoError(t, err)

	_, _ = Resolve[*first](session)
	_, _ = Resolve[*second](session)
	_, _ = Resolve[*repo](window)

	require.NoError(t, session.Dispose())

	assert.Equal(t, []string{"window", "second", "first"}, order)
	assert.True(t, window.IsDisposed())
	assert.False(t, root.IsDisposed(), "parent scope is unaffected")
	assert.Equal(t, 0, root.ChildCount())
}

func TestDisposedScopeRejectsUse(t *testing.T) {
	root, err := NewRoot(nil, Provide(newCart, Scoped))
	require.NoError(t, err)
	child, _ := root.BeginChildScope(Request(""))
	require.NoError(t, child.Dispose())
	require.NoError(t, child.Dispose())

	_, err = Resolve[*cart](child)
	assert.ErrorIs(t, err, ErrScopeDisposed)

	_, err = child.BeginChildScope(Window(""))
	assert.ErrorIs(t, err, ErrScopeDisposed)
}

func TestExternalInstancesAreNotDisposed(t *testing.T) {
	shared := &cart{}
	root, err := NewRoot(nil, Instance(shared))
	require.NoError(t, err)

	_, err = Resolve[*cart](root)
	require.NoError(t, err)
	require.NoError(t, root.Dispose())

	assert.EqualValues(t, 0, shared.disposed.Load())
}

func TestFactoryErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	root, err := NewRoot(nil, Provide(func(Resolver) (*cart, error) { return nil, boom }, Scoped))
	require.NoError(t, err)

	_, err = Resolve[*cart](root)
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentSharedResolutionBuildsOnce(t *testing.T) {
	var built atomic.Int32
	root, err := NewRoot(nil, ProvideShared(func(Resolver) (*cart, error) {
		built.Add(1)
		return &cart{}, nil
	}, Workflow("order")))
	require.NoError(t, err)
	wf, _ := root.BeginChildScope(Workflow("order"))

	var wg sync.WaitGroup
	results := make([]*cart, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := wf.BeginChildScope(Window(""))
			if err != nil {
				return
			}
			results[i], _ = Resolve[*cart](w)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, built.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestHandleDisposeIsIdempotent(t *testing.T) {
	boom := errors.New("close failed")
	root, err := NewRoot(nil)
	require.NoError(t, err)
	child, err := root.BeginChildScope(Window(""),
		Provide(func(Resolver) (*failing, error) { return &failing{err: boom}, nil }, Scoped),
	)
	require.NoError(t, err)
	_, err = Resolve[*failing](child)
	require.NoError(t, err)

	h := NewHandle(child)
	assert.False(t, h.Disposed())
	assert.ErrorIs(t, h.Dispose(), boom)
	assert.NoError(t, h.Dispose())
	assert.True(t, h.Disposed())
	assert.ErrorIs(t, h.Err(), boom)
	assert.False(t, root.IsDisposed())
}

type failing struct{ err error }

func (f *failing) Dispose() error { return f.err }
