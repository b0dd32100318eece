package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

type directory map[id.SessionID]bool

func (d directory) IsSessionActive(sid id.SessionID) bool { return d[sid] }

type countingDisposer struct{ n int }

func (c *countingDisposer) Dispose() error {
	c.n++
	return nil
}

func newOpenMetadata(t *testing.T, sid id.SessionID) (*Metadata, *view.HeadlessView) {
	t.Helper()
	v, err := view.NewHeadlessFactory().CreateView(context.Background(), "vm")
	require.NoError(t, err)
	m := NewMetadata(Params{SessionID: sid, Name: "w"})
	require.NoError(t, m.Attach(v, "vm"))
	require.NoError(t, m.MarkOpen())
	return m, v.(*view.HeadlessView)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	tr := New(nil)
	m := NewMetadata(Params{})

	require.NoError(t, tr.Register(m))
	err := tr.Register(m)

	var dup *DuplicateResourceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, m.ID(), dup.ID)
	assert.Equal(t, 1, tr.Len())
}

func TestRegisterChecksSessionDirectory(t *testing.T) {
	known := id.NewSessionID()
	tr := New(nil)
	tr.AttachDirectory(directory{known: true})

	assert.NoError(t, tr.Register(NewMetadata(Params{SessionID: known})))
	assert.NoError(t, tr.Register(NewMetadata(Params{})), "sessionless resources skip the check")

	err := tr.Register(NewMetadata(Params{SessionID: id.NewSessionID()}))
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 2, tr.Len())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	tr := New(nil)
	m := NewMetadata(Params{})
	require.NoError(t, tr.Register(m))

	assert.True(t, tr.Unregister(m.ID()))
	assert.False(t, tr.Unregister(m.ID()))
	assert.False(t, tr.Unregister(id.NewResourceID()))

	_, err := tr.Get(m.ID())
	assert.ErrorIs(t, err, ErrResourceNotFound)
	_, ok := tr.TryGet(m.ID())
	assert.False(t, ok)
}

func TestAliveInSessionFiltersByStateAndSession(t *testing.T) {
	sid := id.NewSessionID()
	tr := New(nil)

	open, _ := newOpenMetadata(t, sid)
	closing, _ := newOpenMetadata(t, sid)
	require.True(t, closing.BeginClose())
	creating := NewMetadata(Params{SessionID: sid})
	other, _ := newOpenMetadata(t, id.NewSessionID())

	for _, m := range []*Metadata{open, closing, creating, other} {
		require.NoError(t, tr.Register(m))
	}

	alive := tr.AliveInSession(sid)
	require.Len(t, alive, 1)
	assert.Equal(t, open.ID(), alive[0].ID())
	assert.True(t, tr.IsOpen(open.ID()))
	assert.False(t, tr.IsOpen(closing.ID()))
}

func TestForEachInSessionAllowsReentry(t *testing.T) {
	sid := id.NewSessionID()
	tr := New(nil)
	for i := 0; i < 5; i++ {
		m, _ := newOpenMetadata(t, sid)
		require.NoError(t, tr.Register(m))
	}

	visited := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.ForEachInSession(sid, func(m *Metadata) bool {
			visited++
			tr.Unregister(m.ID())
			_ = tr.Register(NewMetadata(Params{SessionID: sid}))
			return true
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ForEachInSession deadlocked on re-entry")
	}
	assert.Equal(t, 5, visited, "snapshot excludes entries added during iteration")
	assert.Equal(t, 5, tr.Len())
}

func TestForEachInSessionStops(t *testing.T) {
	sid := id.NewSessionID()
	tr := New(nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Register(NewMetadata(Params{SessionID: sid})))
	}

	visited := 0
	tr.ForEachInSession(sid, func(*Metadata) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestConcurrentRegisterAndUnregister(t *testing.T) {
	tr := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m := NewMetadata(Params{})
				if err := tr.Register(m); err != nil {
					t.Error(err)
					return
				}
				_ = tr.Snapshot()
				tr.Unregister(m.ID())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	tr := New(nil).WithMetrics(metrics)

	a, b := NewMetadata(Params{}), NewMetadata(Params{})
	require.NoError(t, tr.Register(a))
	require.NoError(t, tr.Register(b))
	tr.Unregister(a.ID())
	tr.Unregister(a.ID())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ResourcesTracked))
}

// Metadata state machine

func TestLifecycleHappyPath(t *testing.T) {
	disposer := &countingDisposer{}
	root, err := scope.NewRoot(nil, scope.Provide(func(scope.Resolver) (*countingDisposer, error) {
		return disposer, nil
	}, scope.Scoped))
	require.NoError(t, err)
	child, err := root.BeginChildScope(scope.Window("w"))
	require.NoError(t, err)
	_, err = scope.Resolve[*countingDisposer](child)
	require.NoError(t, err)

	m := NewMetadata(Params{Handle: scope.NewHandle(child)})
	assert.Equal(t, StateCreating, m.State())
	assert.False(t, m.IsOpened())

	require.NoError(t, m.MarkOpen())
	assert.True(t, m.IsOpened())

	assert.True(t, m.BeginClose())
	assert.False(t, m.BeginClose())
	assert.Equal(t, StateClosing, m.State())

	changed, err := m.SetClosed()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, 1, disposer.n)

	changed, err = m.SetClosed()
	require.NoError(t, err)
	assert.False(t, changed)
	changed, _ = m.Fault(errors.New("late"))
	assert.False(t, changed)
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, 1, disposer.n, "handle disposed exactly once")
	assert.NoError(t, m.Err())
}

func TestInvalidTransitions(t *testing.T) {
	m := NewMetadata(Params{})
	require.NoError(t, m.MarkOpen())
	assert.ErrorIs(t, m.MarkOpen(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Attach(nil, nil), ErrInvalidTransition)

	creating := NewMetadata(Params{})
	assert.False(t, creating.BeginClose())
}

func TestFaultFromCreating(t *testing.T) {
	boom := errors.New("construction failed")
	m := NewMetadata(Params{})

	changed, err := m.Fault(boom)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateFaulted, m.State())
	assert.ErrorIs(t, m.Wait(context.Background()), boom)
	assert.ErrorIs(t, m.MarkOpen(), ErrInvalidTransition)
}

func TestWaitResolvesAfterClose(t *testing.T) {
	m, _ := newOpenMetadata(t, id.NilSession)

	result := make(chan error, 1)
	go func() { result <- m.Wait(context.Background()) }()

	_, _ = m.SetClosed()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not resolve")
	}

	// Already completed: returns immediately even with a cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Wait(ctx))
}

func TestWaitHonorsContext(t *testing.T) {
	m := NewMetadata(Params{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)
}

func TestWithResource(t *testing.T) {
	m, v := newOpenMetadata(t, id.NilSession)

	called := false
	outcome := m.WithResource(func(h view.Handle, vm any) error {
		called = true
		assert.Same(t, v, h)
		assert.Equal(t, "vm", vm)
		return nil
	})
	assert.Equal(t, OK, outcome)
	assert.True(t, called)

	title, outcome := WithResourceValue(m, func(h view.Handle, _ any) (string, error) {
		return h.(*view.HeadlessView).Title, nil
	})
	assert.Equal(t, OK, outcome)
	assert.Equal(t, "string", title)
}

func TestWithResourceAfterCloseIsNotAlive(t *testing.T) {
	m, _ := newOpenMetadata(t, id.NilSession)
	_, _ = m.SetClosed()

	tr := New(nil)
	require.NoError(t, tr.Register(m))
	got, err := tr.Get(m.ID())
	require.NoError(t, err)
	assert.False(t, got.IsOpened())

	called := false
	outcome := got.WithResource(func(view.Handle, any) error {
		called = true
		return nil
	})
	assert.Equal(t, NotAlive, outcome)
	assert.False(t, called)
}

func TestWithResourceOnDestroyedView(t *testing.T) {
	m, v := newOpenMetadata(t, id.NilSession)
	v.Destroy()

	assert.Equal(t, NotAlive, m.WithResource(func(view.Handle, any) error { return nil }))
}

func TestWithResourceContainsCallbackFailures(t *testing.T) {
	m, _ := newOpenMetadata(t, id.NilSession)

	assert.Equal(t, CallbackFailed, m.WithResource(func(view.Handle, any) error {
		return errors.New("caller bug")
	}))

	n, outcome := WithResourceValue(m, func(view.Handle, any) (int, error) {
		panic("caller bug")
	})
	assert.Equal(t, CallbackFailed, outcome)
	assert.Zero(t, n)

	assert.True(t, m.IsOpened(), "callback failures do not change the resource state")
}

func TestWithResourceHoldsReferencesAcrossConcurrentClose(t *testing.T) {
	m, _ := newOpenMetadata(t, id.NilSession)

	entered := make(chan struct{})
	release := make(chan struct{})
	result := make(chan Outcome, 1)
	go func() {
		result <- m.WithResource(func(h view.Handle, vm any) error {
			close(entered)
			<-release
			if h == nil || vm == nil {
				return errors.New("references dropped mid-callback")
			}
			return nil
		})
	}()

	<-entered
	_, _ = m.SetClosed()
	close(release)

	assert.Equal(t, OK, <-result)
	assert.Equal(t, NotAlive, m.WithResource(func(view.Handle, any) error { return nil }))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.True(t, StateFaulted.IsTerminal())
	assert.False(t, StateClosing.IsTerminal())
	assert.Equal(t, "not alive", NotAlive.String())
}

func TestStateText(t *testing.T) {
	for st := StateCreating; st <= StateFaulted; st++ {
		text, err := st.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, st, back)
	}
	var s State
	assert.Error(t, s.UnmarshalText([]byte("sleeping")))
}
