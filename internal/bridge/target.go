package bridge

import (
	"context"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/storage"
)

// Source yields the current device snapshot.
type Source interface {
	Fetch(ctx context.Context) (*domain.Snapshot, error)
}

// Target receives the entries of a cycle that passed the filter.
// Implementations must upsert by (type, date).
type Target interface {
	Name() string
	Push(ctx context.Context, entries []domain.Entry) error
}

// StoreTarget mirrors entries into an EntryStore.
type StoreTarget struct {
	name  string
	store storage.EntryStore
}

// NewStoreTarget wraps store as a push target reported under name.
func NewStoreTarget(name string, store storage.EntryStore) *StoreTarget {
	return &StoreTarget{name: name, store: store}
}

// Name returns the target name.
func (t *StoreTarget) Name() string {
	return t.name
}

// Push upserts entries into the store.
func (t *StoreTarget) Push(ctx context.Context, entries []domain.Entry) error {
	return t.store.Upsert(ctx, entries)
}
