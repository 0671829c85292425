package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/samber/lo"
)

var _ numbering.Repository = (*InMemoryNumberingStore)(nil)

// Operation names accepted by InMemoryNumberingStore.FailOn
const (
	OpGetOrCreate     = "get_or_create"
	OpAtomicIncrement = "atomic_increment"
	OpApplyConfig     = "apply_config"
	OpResetWhere      = "reset_where"
	OpAppendErrorLog  = "append_error_log"
)

// InMemoryNumberingStore implements numbering.Repository.
// Compound operations hold opMu so they behave like the single statements of the
// postgres store.
type InMemoryNumberingStore struct {
	*InMemoryStore[*numbering.Scope]

	opMu           sync.Mutex
	failMu         sync.RWMutex
	failures       map[string]error
	prefixFailures map[string]map[string]error
	calls          map[string]int
}

// NewInMemoryNumberingStore creates a new in-memory numbering store
func NewInMemoryNumberingStore() *InMemoryNumberingStore {
	return &InMemoryNumberingStore{
		InMemoryStore: NewInMemoryStore[*numbering.Scope](),
		failures:       make(map[string]error),
		prefixFailures: make(map[string]map[string]error),
		calls:          make(map[string]int),
	}
}

// FailOn makes every subsequent call of op return err; a nil err clears it
func (s *InMemoryNumberingStore) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// FailOnPrefix makes op return err only for scopes with the given prefix.
// Supported by the keyed operations GetOrCreate and ResetWhere.
func (s *InMemoryNumberingStore) FailOnPrefix(op, prefix string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	prefix = numbering.NormalizePrefix(prefix)
	if err == nil {
		delete(s.prefixFailures[op], prefix)
		return
	}
	if s.prefixFailures[op] == nil {
		s.prefixFailures[op] = make(map[string]error)
	}
	s.prefixFailures[op][prefix] = err
}

// Calls returns how many times op was invoked
func (s *InMemoryNumberingStore) Calls(op string) int {
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	return s.calls[op]
}

func (s *InMemoryNumberingStore) enter(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.calls[op]++
	return s.failures[op]
}

func (s *InMemoryNumberingStore) enterKey(op string, key numbering.ScopeKey) error {
	if err := s.enter(op); err != nil {
		return err
	}
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	return s.prefixFailures[op][key.Prefix]
}

// Clear removes all scopes, injected failures and call counts
func (s *InMemoryNumberingStore) Clear() {
	s.InMemoryStore.Clear()
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures = make(map[string]error)
	s.prefixFailures = make(map[string]map[string]error)
	s.calls = make(map[string]int)
}

// Seed stores a scope as is
func (s *InMemoryNumberingStore) Seed(ctx context.Context, scope *numbering.Scope) error {
	return s.InMemoryStore.Create(ctx, scope.ID, scope.Copy())
}

// Remove deletes a scope, ex to simulate a row that disappeared behind a cached id
func (s *InMemoryNumberingStore) Remove(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryNumberingStore) GetOrCreate(ctx context.Context, key numbering.ScopeKey, defaults numbering.ScopeDefaults) (*numbering.Scope, error) {
	if err := s.enterKey(OpGetOrCreate, key); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if scope := s.findByKey(ctx, key); scope != nil {
		return scope.Copy(), nil
	}

	scope := newScope(key, defaults)
	if err := s.InMemoryStore.Create(ctx, scope.ID, scope); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrScopeNotResolvable)
	}
	return scope.Copy(), nil
}

func (s *InMemoryNumberingStore) Get(ctx context.Context, tenantID, id string) (*numbering.Scope, error) {
	scope, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return scope.Copy(), nil
}

func (s *InMemoryNumberingStore) FindByKey(ctx context.Context, key numbering.ScopeKey) (*numbering.Scope, error) {
	scope := s.findByKey(ctx, key)
	if scope == nil {
		return nil, ierr.NewError("numbering scope not found").
			WithHint("Numbering scope not found").
			Mark(ierr.ErrNotFound)
	}
	return scope.Copy(), nil
}

func (s *InMemoryNumberingStore) AtomicIncrement(ctx context.Context, tenantID, scopeID string) (*numbering.IncrementResult, error) {
	if err := s.enter(OpAtomicIncrement); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	scope, err := s.get(ctx, tenantID, scopeID)
	if err != nil {
		return nil, err
	}

	updated := scope.Copy()
	updated.LastNumber++
	updated.UpdatedAt = time.Now().UTC()
	if err := s.InMemoryStore.Update(ctx, updated.ID, updated); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrIncrementFailed)
	}

	return &numbering.IncrementResult{
		Scope:              updated.Copy(),
		PreviousLastNumber: scope.LastNumber,
		NewLastNumber:      updated.LastNumber,
	}, nil
}

func (s *InMemoryNumberingStore) ApplyConfig(ctx context.Context, tenantID, scopeID string, patch numbering.ConfigPatch) (*numbering.Scope, error) {
	if err := s.enter(OpApplyConfig); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	scope, err := s.get(ctx, tenantID, scopeID)
	if err != nil {
		return nil, err
	}

	updated := patch.ApplyTo(scope)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.InMemoryStore.Update(ctx, updated.ID, updated); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrScopeNotResolvable)
	}
	return updated.Copy(), nil
}

func (s *InMemoryNumberingStore) List(ctx context.Context, filter *numbering.ScopeFilter) ([]*numbering.Scope, error) {
	items, err := s.InMemoryStore.List(ctx, filter, numberingScopeFilterFn, numberingScopeSortFn)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return lo.Map(items, func(s *numbering.Scope, _ int) *numbering.Scope { return s.Copy() }), nil
}

func (s *InMemoryNumberingStore) ListResetCandidates(ctx context.Context, tenantID string, policy types.ResetPolicy) ([]*numbering.Scope, error) {
	scopes, err := s.List(ctx, &numbering.ScopeFilter{TenantID: tenantID})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*numbering.Scope)
	for _, scope := range scopes {
		k := scope.EntityType.String() + "|" + scope.Prefix
		if cur, ok := latest[k]; !ok || periodAfter(scope.Period(), cur.Period()) {
			latest[k] = scope
		}
	}

	candidates := lo.Filter(lo.Values(latest), func(scope *numbering.Scope, _ int) bool {
		if policy == types.ResetPolicyMonthly {
			return scope.ResetMonthly
		}
		return scope.ResetAnnual && !scope.ResetMonthly
	})
	sort.Slice(candidates, func(i, j int) bool {
		return numberingScopeSortFn(candidates[i], candidates[j])
	})
	return candidates, nil
}

func (s *InMemoryNumberingStore) ListTenants(ctx context.Context) ([]string, error) {
	scopes, err := s.InMemoryStore.List(ctx, nil, nil, nil)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	tenants := lo.Uniq(lo.Map(scopes, func(s *numbering.Scope, _ int) string { return s.TenantID }))
	sort.Strings(tenants)
	return tenants, nil
}

func (s *InMemoryNumberingStore) ResetWhere(ctx context.Context, filter numbering.ResetFilter) (bool, error) {
	key := filter.Key()
	if err := s.enterKey(OpResetWhere, key); err != nil {
		return false, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	scope := s.findByKey(ctx, key)
	if scope == nil {
		created := newScope(key, filter.Defaults)
		if err := s.InMemoryStore.Create(ctx, created.ID, created); err != nil {
			return false, ierr.WithError(err).Mark(ierr.ErrScopeNotResolvable)
		}
		return false, nil
	}
	if scope.LastNumber == 0 {
		return false, nil
	}

	updated := scope.Copy()
	updated.LastNumber = 0
	updated.UpdatedAt = time.Now().UTC()
	if err := s.InMemoryStore.Update(ctx, updated.ID, updated); err != nil {
		return false, ierr.WithError(err).Mark(ierr.ErrScopeNotResolvable)
	}
	return true, nil
}

func (s *InMemoryNumberingStore) AppendErrorLog(ctx context.Context, tenantID string, entityType types.EntityType, prefix string, entry numbering.ErrorLogEntry, limit int) error {
	if err := s.enter(OpAppendErrorLog); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	prefix = numbering.NormalizePrefix(prefix)
	scopes, _ := s.InMemoryStore.List(ctx, nil, func(_ context.Context, sc *numbering.Scope, _ interface{}) bool {
		return sc.TenantID == tenantID && sc.EntityType == entityType && sc.Prefix == prefix
	}, nil)
	if len(scopes) == 0 {
		return nil
	}

	target := lo.MaxBy(scopes, func(a, b *numbering.Scope) bool {
		return periodAfter(a.Period(), b.Period())
	})
	updated := target.Copy()
	updated.ErrorLog = append(updated.ErrorLog, entry)
	if limit > 0 && len(updated.ErrorLog) > limit {
		updated.ErrorLog = updated.ErrorLog[len(updated.ErrorLog)-limit:]
	}
	return s.InMemoryStore.Update(ctx, updated.ID, updated)
}

func (s *InMemoryNumberingStore) get(ctx context.Context, tenantID, id string) (*numbering.Scope, error) {
	scope, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || scope.TenantID != tenantID {
		return nil, ierr.NewError("numbering scope not found").
			WithHint("Numbering scope not found").
			WithReportableDetails(map[string]any{"scope_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return scope, nil
}

func (s *InMemoryNumberingStore) findByKey(ctx context.Context, key numbering.ScopeKey) *numbering.Scope {
	scopes, _ := s.InMemoryStore.List(ctx, nil, func(_ context.Context, sc *numbering.Scope, _ interface{}) bool {
		return sc.Key() == key
	}, nil)
	if len(scopes) == 0 {
		return nil
	}
	return scopes[0]
}

func newScope(key numbering.ScopeKey, defaults numbering.ScopeDefaults) *numbering.Scope {
	now := time.Now().UTC()
	return &numbering.Scope{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NUMBERING_SCOPE),
		EntityType:     key.EntityType,
		Prefix:         key.Prefix,
		Year:           key.Period.Year,
		Month:          key.Period.Month,
		Format:         defaults.Format,
		ResetAnnual:    defaults.ResetAnnual,
		ResetMonthly:   defaults.ResetMonthly,
		AdvancedConfig: defaults.AdvancedConfig,
		ErrorLog:       numbering.ErrorLog{},
		BaseModel: types.BaseModel{
			TenantID:  key.TenantID,
			Status:    types.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: defaults.CreatedBy,
			UpdatedBy: defaults.CreatedBy,
		},
	}
}

func periodAfter(a, b types.Period) bool {
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	return a.Month > b.Month
}

func numberingScopeFilterFn(ctx context.Context, scope *numbering.Scope, filter interface{}) bool {
	f, ok := filter.(*numbering.ScopeFilter)
	if !ok || f == nil {
		return true
	}
	if f.TenantID != "" && scope.TenantID != f.TenantID {
		return false
	}
	if f.EntityType != "" && scope.EntityType != f.EntityType {
		return false
	}
	if f.Prefix != "" && scope.Prefix != numbering.NormalizePrefix(f.Prefix) {
		return false
	}
	return true
}

func numberingScopeSortFn(i, j *numbering.Scope) bool {
	if i.EntityType != j.EntityType {
		return i.EntityType < j.EntityType
	}
	if i.Prefix != j.Prefix {
		return i.Prefix < j.Prefix
	}
	if i.Year != j.Year {
		return i.Year < j.Year
	}
	return i.Month < j.Month
}
