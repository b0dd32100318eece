package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    int
	Total float64
}

func TestChangesAreInvisibleToStoreUntilSaved(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	unit := NewMemoryUnit(store)
	orders := NewMemoryRepository[int, order](unit, "orders")

	require.NoError(t, orders.Add(ctx, 1, order{ID: 1, Total: 10}))
	require.NoError(t, orders.Add(ctx, 2, order{ID: 2, Total: 20}))
	require.NoError(t, orders.Update(ctx, 1, order{ID: 1, Total: 15}))

	got, err := orders.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Total, "reads see staged changes")
	assert.Equal(t, 0, store.Count("orders"))

	n, err := unit.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, store.Count("orders"))
	assert.Equal(t, 0, unit.Pending())
}

func TestRollbackDiscardsPending(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	unit := NewMemoryUnit(store)
	orders := NewMemoryRepository[int, order](unit, "orders")

	require.NoError(t, orders.Add(ctx, 1, order{ID: 1}))
	require.NoError(t, unit.Rollback(ctx))

	_, err := orders.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := unit.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteAndMissingKeys(t *testing.T) {
	ctx := context.Background()
	unit := NewMemoryUnit(NewStore())
	orders := NewMemoryRepository[int, order](unit, "orders")

	assert.ErrorIs(t, orders.Update(ctx, 9, order{}), ErrNotFound)
	assert.ErrorIs(t, orders.Delete(ctx, 9), ErrNotFound)

	require.NoError(t, orders.Add(ctx, 1, order{ID: 1}))
	assert.ErrorIs(t, orders.Add(ctx, 1, order{ID: 1}), ErrDuplicateKey)
	require.NoError(t, orders.Delete(ctx, 1))
	_, err := orders.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedSaveKeepsPendingAndStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	unit := NewMemoryUnit(store)
	unit.BeforeSave = func(context.Context) error { return errors.New("disk full") }
	orders := NewMemoryRepository[int, order](unit, "orders")
	require.NoError(t, orders.Add(ctx, 1, order{ID: 1}))

	_, err := unit.SaveChanges(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, unit.Pending())
	assert.Equal(t, 0, store.Count("orders"))
}

func TestConflictingUnitsOnSameStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a, b := NewMemoryUnit(store), NewMemoryUnit(store)
	require.NoError(t, NewMemoryRepository[int, order](a, "orders").Add(ctx, 1, order{ID: 1}))
	require.NoError(t, NewMemoryRepository[int, order](b, "orders").Add(ctx, 1, order{ID: 1}))

	_, err := a.SaveChanges(ctx)
	require.NoError(t, err)
	_, err = b.SaveChanges(ctx)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, 1, store.Count("orders"))
}
