package numbering

import (
	"context"

	"github.com/qmsuite/correlative/internal/types"
)

// Repository persists numbering scopes.
//
// Storage failures are returned marked with ierr.ErrScopeNotResolvable, except
// for AtomicIncrement which marks them with ierr.ErrIncrementFailed.
type Repository interface {
	// GetOrCreate returns the scope for key, creating it with defaults and a zero counter.
	// Concurrent first calls for the same key resolve to a single row.
	GetOrCreate(ctx context.Context, key ScopeKey, defaults ScopeDefaults) (*Scope, error)

	// Get returns a scope by id, or ierr.ErrNotFound
	Get(ctx context.Context, tenantID, id string) (*Scope, error)

	// FindByKey returns the scope for key without creating it, or ierr.ErrNotFound
	FindByKey(ctx context.Context, key ScopeKey) (*Scope, error)

	// AtomicIncrement advances the counter by one in a single storage operation and
	// returns the updated scope. It is the only path by which last_number grows.
	AtomicIncrement(ctx context.Context, tenantID, scopeID string) (*IncrementResult, error)

	// ApplyConfig merges the patch into the scope and returns it; the counter is untouched
	ApplyConfig(ctx context.Context, tenantID, scopeID string, patch ConfigPatch) (*Scope, error)

	// List returns scopes ordered by entity type, prefix, year and month
	List(ctx context.Context, filter *ScopeFilter) ([]*Scope, error)

	// ListResetCandidates returns the latest scope of every configuration of the tenant
	// that resets under the policy
	ListResetCandidates(ctx context.Context, tenantID string, policy types.ResetPolicy) ([]*Scope, error)

	// ListTenants returns every tenant owning at least one scope
	ListTenants(ctx context.Context) ([]string, error)

	// ResetWhere zeroes the scope selected by the filter, creating it zeroed if needed.
	// It reports whether a non-zero counter was reset.
	ResetWhere(ctx context.Context, filter ResetFilter) (bool, error)

	// AppendErrorLog appends an entry to the most recent scope of the configuration,
	// keeping at most limit entries
	AppendErrorLog(ctx context.Context, tenantID string, entityType types.EntityType, prefix string, entry ErrorLogEntry, limit int) error
}

// LogRepository persists the append-only numbering audit trail
type LogRepository interface {
	Create(ctx context.Context, entry *LogEntry) error
	List(ctx context.Context, filter *LogFilter) ([]*LogEntry, error)
}
