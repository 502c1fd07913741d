package memory

import (
	"context"
	"sort"
	"sync"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/storage"
)

// entryKey is the upsert key Nightscout uses for entries.
type entryKey struct {
	Type domain.EntryType
	Date int64
}

// EntryStore is an in-memory implementation of storage.EntryStore.
type EntryStore struct {
	mu      sync.RWMutex
	data    map[entryKey]domain.Entry
	upserts int
}

// NewEntryStore creates a new in-memory entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		data: make(map[entryKey]domain.Entry),
	}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// Upsert writes entries, replacing existing ones by (type, date).
func (s *EntryStore) Upsert(_ context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e == nil {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		// Entry variants are value types, storing the interface keeps a copy.
		s.data[entryKey{Type: e.Kind(), Date: e.TimestampMs()}] = e
	}
	s.upserts++

	return nil
}

// GetByTimeRange retrieves entries within [start, end] (inclusive).
func (s *EntryStore) GetByTimeRange(_ context.Context, start, end int64) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Entry, 0)
	for k, e := range s.data {
		if k.Date >= start && k.Date <= end {
			result = append(result, e)
		}
	}

	sortEntries(result)
	return result, nil
}

// GetLatestSGV retrieves the newest glucose reading.
func (s *EntryStore) GetLatestSGV(_ context.Context) (domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest domain.Entry
	for k, e := range s.data {
		if k.Type != domain.EntryTypeSGV {
			continue
		}
		if latest == nil || k.Date > latest.TimestampMs() {
			latest = e
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

// Len returns the number of stored entries.
func (s *EntryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Upserts returns the number of non-empty Upsert calls.
func (s *EntryStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// sortEntries orders entries by date ASC, then type ASC.
func sortEntries(entries []domain.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TimestampMs() != entries[j].TimestampMs() {
			return entries[i].TimestampMs() < entries[j].TimestampMs()
		}
		return entries[i].Kind() < entries[j].Kind()
	})
}
