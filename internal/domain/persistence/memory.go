package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateKey is returned by Add for an existing key.
var ErrDuplicateKey = errors.New("entity already exists")

type op int

const (
	opAdd op = iota
	opUpdate
	opDelete
)

type change struct {
	table string
	key   any
	value any
	op    op
}

// Store is the committed state shared by every MemoryUnit opened on it.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[any]any
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{tables: make(map[string]map[any]any)}
}

func (s *Store) get(table string, key any) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tables[table][key]
	return v, ok
}

// Count returns the number of committed entities in table
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (s *Store) apply(changes []change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate first so a failed save leaves the store untouched.
	for _, c := range changes {
		if c.op == opAdd {
			if _, exists := s.tables[c.table][c.key]; exists {
				return fmt.Errorf("%s[%v]: %w", c.table, c.key, ErrDuplicateKey)
			}
		}
	}
	for _, c := range changes {
		t, ok := s.tables[c.table]
		if !ok {
			t = make(map[any]any)
			s.tables[c.table] = t
		}
		switch c.op {
		case opAdd, opUpdate:
			t[c.key] = c.value
		case opDelete:
			delete(t, c.key)
		}
	}
	return nil
}

// MemoryUnit stages changes in memory until SaveChanges.
type MemoryUnit struct {
	store *Store

	mu      sync.Mutex
	pending []change

	// BeforeSave, when set, runs before changes are applied; an error aborts the save.
	BeforeSave func(ctx context.Context) error
}

// NewMemoryUnit opens a unit of work on store
func NewMemoryUnit(store *Store) *MemoryUnit {
	return &MemoryUnit{store: store}
}

// SaveChanges implements UnitOfWork. It returns the number of changes applied.
func (u *MemoryUnit) SaveChanges(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if u.BeforeSave != nil {
		if err := u.BeforeSave(ctx); err != nil {
			return 0, err
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.store.apply(u.pending); err != nil {
		return 0, err
	}
	n := len(u.pending)
	u.pending = nil
	return n, nil
}

// Rollback implements UnitOfWork
func (u *MemoryUnit) Rollback(context.Context) error {
	u.mu.Lock()
	u.pending = nil
	u.mu.Unlock()
	return nil
}

// Pending returns the number of staged changes
func (u *MemoryUnit) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

func (u *MemoryUnit) stage(c change) {
	u.mu.Lock()
	u.pending = append(u.pending, c)
	u.mu.Unlock()
}

// lookup resolves key against staged changes first, then the store.
func (u *MemoryUnit) lookup(table string, key any) (any, bool) {
	u.mu.Lock()
	for i := len(u.pending) - 1; i >= 0; i-- {
		c := u.pending[i]
		if c.table != table || c.key != key {
			continue
		}
		u.mu.Unlock()
		if c.op == opDelete {
			return nil, false
		}
		return c.value, true
	}
	u.mu.Unlock()
	return u.store.get(table, key)
}

// MemoryRepository is a Repository over one table of a MemoryUnit.
type MemoryRepository[K comparable, T any] struct {
	unit  *MemoryUnit
	table string
}

// NewMemoryRepository creates a repository staging into unit
func NewMemoryRepository[K comparable, T any](unit *MemoryUnit, table string) *MemoryRepository[K, T] {
	return &MemoryRepository[K, T]{unit: unit, table: table}
}

// Get implements Repository
func (r *MemoryRepository[K, T]) Get(_ context.Context, key K) (T, error) {
	var zero T
	v, ok := r.unit.lookup(r.table, key)
	if !ok {
		return zero, fmt.Errorf("%s[%v]: %w", r.table, key, ErrNotFound)
	}
	return v.(T), nil
}

// Add implements Repository
func (r *MemoryRepository[K, T]) Add(_ context.Context, key K, entity T) error {
	if _, ok := r.unit.lookup(r.table, key); ok {
		return fmt.Errorf("%s[%v]: %w", r.table, key, ErrDuplicateKey)
	}
	r.unit.stage(change{table: r.table, key: key, value: entity, op: opAdd})
	return nil
}

// Update implements Repository
func (r *MemoryRepository[K, T]) Update(_ context.Context, key K, entity T) error {
	if _, ok := r.unit.lookup(r.table, key); !ok {
		return fmt.Errorf("%s[%v]: %w", r.table, key, ErrNotFound)
	}
	r.unit.stage(change{table: r.table, key: key, value: entity, op: opUpdate})
	return nil
}

// Delete implements Repository
func (r *MemoryRepository[K, T]) Delete(_ context.Context, key K) error {
	if _, ok := r.unit.lookup(r.table, key); !ok {
		return fmt.Errorf("%s[%v]: %w", r.table, key, ErrNotFound)
	}
	r.unit.stage(change{table: r.table, key: key, op: opDelete})
	return nil
}
