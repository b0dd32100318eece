package persistence

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Repository.Get for a missing key.
var ErrNotFound = errors.New("entity not found")

// UnitOfWork commits or discards pending changes.
type UnitOfWork interface {
	SaveChanges(ctx context.Context) (int, error)
	Rollback(ctx context.Context) error
}

// Repository is the generic CRUD façade over one entity type.
type Repository[K comparable, T any] interface {
	Get(ctx context.Context, key K) (T, error)
	Add(ctx context.Context, key K, entity T) error
	Update(ctx context.Context, key K, entity T) error
	Delete(ctx context.Context, key K) error
}
