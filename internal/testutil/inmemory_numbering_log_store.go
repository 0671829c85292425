package testutil

import (
	"context"

	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
)

var _ numbering.LogRepository = (*InMemoryNumberingLogStore)(nil)

// InMemoryNumberingLogStore implements numbering.LogRepository
type InMemoryNumberingLogStore struct {
	*InMemoryStore[*numbering.LogEntry]
}

// NewInMemoryNumberingLogStore creates a new in-memory numbering log store
func NewInMemoryNumberingLogStore() *InMemoryNumberingLogStore {
	return &InMemoryNumberingLogStore{
		InMemoryStore: NewInMemoryStore[*numbering.LogEntry](),
	}
}

func (s *InMemoryNumberingLogStore) Create(ctx context.Context, entry *numbering.LogEntry) error {
	c := *entry
	if err := s.InMemoryStore.Create(ctx, entry.ID, &c); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryNumberingLogStore) List(ctx context.Context, filter *numbering.LogFilter) ([]*numbering.LogEntry, error) {
	items, err := s.InMemoryStore.List(ctx, filter, numberingLogFilterFn, numberingLogSortFn)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if filter != nil && filter.Limit > 0 && uint64(len(items)) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func numberingLogFilterFn(ctx context.Context, entry *numbering.LogEntry, filter interface{}) bool {
	f, ok := filter.(*numbering.LogFilter)
	if !ok || f == nil {
		return true
	}
	if f.TenantID != "" && entry.TenantID != f.TenantID {
		return false
	}
	if f.ScopeID != "" && entry.ScopeID != f.ScopeID {
		return false
	}
	return true
}

// newest first, matching the postgres store
func numberingLogSortFn(i, j *numbering.LogEntry) bool {
	if !i.CreatedAt.Equal(j.CreatedAt) {
		return i.CreatedAt.After(j.CreatedAt)
	}
	return i.ID > j.ID
}
