package service

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qmsuite/correlative/internal/api/dto"
	"github.com/qmsuite/correlative/internal/cache"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/metrics"
	"github.com/qmsuite/correlative/internal/types"
)

const (
	kindCode    = "code"
	kindSubCode = "subcode"
)

// NumberingService issues correlative codes
type NumberingService interface {
	// GenerateCode issues the next code of the scope selected by the config.
	// A failed call never consumes a number; a call that times out after the
	// increment committed has consumed one and must not be retried expecting it back.
	GenerateCode(ctx context.Context, tenantID string, req dto.NumberingConfig, userID string) (*dto.CodeResult, error)

	// GenerateSubCode issues a child code of the form <parentCode>.<childPrefix><number>.
	// The child counter is not keyed by the parent: every parent with the same child
	// entity type and prefix draws from one shared counter.
	GenerateSubCode(ctx context.Context, tenantID, parentCode string, childEntityType types.EntityType, childPrefix string) (string, error)

	// GetConfiguration lists the scopes of a tenant, optionally for one entity type
	GetConfiguration(ctx context.Context, tenantID string, entityType types.EntityType) ([]*numbering.Scope, error)

	// PreviewCode renders the code the next issuance would receive without reserving it
	PreviewCode(ctx context.Context, tenantID string, req dto.NumberingConfig) (*dto.PreviewResponse, error)

	// ListLogs returns the most recent issuance audit entries of a tenant
	ListLogs(ctx context.Context, tenantID, scopeID string, limit uint64) ([]*numbering.LogEntry, error)
}

type numberingService struct {
	ServiceParams
}

func NewNumberingService(params ServiceParams) NumberingService {
	return &numberingService{
		ServiceParams: params,
	}
}

func (s *numberingService) GenerateCode(ctx context.Context, tenantID string, req dto.NumberingConfig, userID string) (*dto.CodeResult, error) {
	return s.generate(ctx, tenantID, req, userID, kindCode)
}

func (s *numberingService) GenerateSubCode(ctx context.Context, tenantID, parentCode string, childEntityType types.EntityType, childPrefix string) (string, error) {
	if err := dto.ValidateParentCode(parentCode); err != nil {
		return "", err
	}

	req := dto.NewSubCodeConfig(strings.TrimSpace(parentCode), childEntityType, childPrefix)
	result, err := s.generate(ctx, tenantID, req, types.GetUserID(ctx), kindSubCode)
	if err != nil {
		return "", err
	}
	return result.Code, nil
}

func (s *numberingService) generate(ctx context.Context, tenantID string, req dto.NumberingConfig, userID, kind string) (*dto.CodeResult, error) {
	started := time.Now()

	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		metrics.GenerationFailed(req.EntityType.String(), ierr.ErrCodeConfigurationInvalid)
		return nil, err
	}

	now := s.now()
	key := numbering.NewScopeKey(tenantID, req.EntityType, req.Prefix, req.Period(now))

	inc, err := s.issue(ctx, key, req, userID)
	if err != nil {
		s.recordFailure(ctx, key, userID, err)
		metrics.ObserveGeneration(key.EntityType.String(), metrics.OutcomeFailure, started)
		return nil, err
	}

	// the caller's overrides win over whatever another caller merged concurrently
	scope := req.ToPatch(userID).ApplyTo(inc.Scope)
	code := numbering.Render(numbering.RenderInputFor(scope, now, inc.NewLastNumber))
	preview := numbering.Render(numbering.RenderInputFor(scope, now, inc.NewLastNumber+1))

	s.writeAudit(ctx, &numbering.LogEntry{
		TenantID:   tenantID,
		ScopeID:    inc.Scope.ID,
		EntityType: key.EntityType,
		Prefix:     key.Prefix,
		Action:     numbering.LogActionCreate,
		Code:       code,
		Number:     inc.NewLastNumber,
		Success:    true,
		CreatedBy:  userID,
	})
	metrics.CodeIssued(key.EntityType.String(), kind)
	metrics.ObserveGeneration(key.EntityType.String(), metrics.OutcomeSuccess, started)

	s.Logger.Debugw("issued numbering code",
		"tenant_id", tenantID,
		"entity_type", key.EntityType,
		"prefix", key.Prefix,
		"period", key.Period.String(),
		"code", code,
		"number", inc.NewLastNumber,
	)

	return &dto.CodeResult{
		Code:            code,
		Number:          inc.NewLastNumber,
		Scope:           dto.NewScopeResponse(inc.Scope),
		NextCodePreview: preview,
	}, nil
}

// issue resolves the scope, merges the caller overrides and increments the counter.
// The merge and the increment share a transaction so the returned snapshot carries
// this call's configuration.
func (s *numberingService) issue(ctx context.Context, key numbering.ScopeKey, req dto.NumberingConfig, userID string) (*numbering.IncrementResult, error) {
	patch := req.ToPatch(userID)
	defaults := req.ToDefaults(s.Config.Numbering, userID)

	scopeID, cached, err := s.resolveScopeID(ctx, key, defaults)
	if err != nil {
		return nil, classifyIssueError(err, key)
	}

	inc, err := s.incrementInTx(ctx, key.TenantID, scopeID, patch)
	if err != nil && cached && ierr.IsNotFound(err) {
		// nothing was updated, so no number was consumed
		s.Cache.Delete(ctx, scopeCacheKey(key))
		if scopeID, _, err = s.resolveScopeID(ctx, key, defaults); err != nil {
			return nil, classifyIssueError(err, key)
		}
		inc, err = s.incrementInTx(ctx, key.TenantID, scopeID, patch)
	}
	if err != nil {
		return nil, classifyIssueError(err, key)
	}
	return inc, nil
}

func (s *numberingService) incrementInTx(ctx context.Context, tenantID, scopeID string, patch numbering.ConfigPatch) (*numbering.IncrementResult, error) {
	var inc *numbering.IncrementResult
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if !patch.IsEmpty() {
			if _, err := s.NumberingRepo.ApplyConfig(ctx, tenantID, scopeID, patch); err != nil {
				return err
			}
		}

		var err error
		inc, err = s.NumberingRepo.AtomicIncrement(ctx, tenantID, scopeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// resolveScopeID returns the id of the scope for key, from the cache when possible.
// Scopes are never deleted, so a cached id stays valid for the life of the row.
func (s *numberingService) resolveScopeID(ctx context.Context, key numbering.ScopeKey, defaults numbering.ScopeDefaults) (string, bool, error) {
	cacheKey := scopeCacheKey(key)
	if v, ok := s.Cache.Get(ctx, cacheKey); ok {
		if id, ok := v.(string); ok && id != "" {
			metrics.ScopeCacheLookup(true)
			return id, true, nil
		}
	}
	metrics.ScopeCacheLookup(false)

	var scope *numbering.Scope
	op := func() error {
		var err error
		scope, err = s.NumberingRepo.GetOrCreate(ctx, key, defaults)
		if err != nil && !ierr.IsScopeNotResolvable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newResolveBackoff(), s.Config.Numbering.ResolveRetries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return "", false, err
	}

	s.Cache.Set(ctx, cacheKey, scope.ID, 0)
	return scope.ID, false, nil
}

func newResolveBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	return b
}

func scopeCacheKey(key numbering.ScopeKey) string {
	return cache.GenerateKey(cache.PrefixNumberingScope, key.String())
}

// classifyIssueError keeps the storage classification of err and marks anything
// else as an unresolvable scope, so callers only see the numbering taxonomy
func classifyIssueError(err error, key numbering.ScopeKey) error {
	switch {
	case ierr.IsScopeNotResolvable(err), ierr.IsIncrementFailed(err), ierr.IsConfigurationInvalid(err):
		return err
	}
	return ierr.WithError(err).
		WithHint("Numbering scope could not be resolved").
		WithReportableDetails(map[string]any{
			"tenant_id":   key.TenantID,
			"entity_type": key.EntityType,
			"prefix":      key.Prefix,
		}).
		Mark(ierr.ErrScopeNotResolvable)
}

func (s *numberingService) GetConfiguration(ctx context.Context, tenantID string, entityType types.EntityType) ([]*numbering.Scope, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if entityType != "" {
		if err := entityType.Validate(); err != nil {
			return nil, err
		}
	}

	return s.NumberingRepo.List(ctx, &numbering.ScopeFilter{
		TenantID:   tenantID,
		EntityType: entityType,
	})
}

func (s *numberingService) PreviewCode(ctx context.Context, tenantID string, req dto.NumberingConfig) (*dto.PreviewResponse, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	key := numbering.NewScopeKey(tenantID, req.EntityType, req.Prefix, req.Period(now))
	userID := types.GetUserID(ctx)

	scope, err := s.NumberingRepo.FindByKey(ctx, key)
	if ierr.IsNotFound(err) {
		d := req.ToDefaults(s.Config.Numbering, userID)
		scope = &numbering.Scope{
			EntityType:     key.EntityType,
			Prefix:         key.Prefix,
			Format:         d.Format,
			ResetAnnual:    d.ResetAnnual,
			ResetMonthly:   d.ResetMonthly,
			AdvancedConfig: d.AdvancedConfig,
		}
	} else if err != nil {
		return nil, err
	}

	scope = req.ToPatch(userID).ApplyTo(scope)
	number := scope.LastNumber + 1
	return &dto.PreviewResponse{
		Code:   numbering.Render(numbering.RenderInputFor(scope, now, number)),
		Number: number,
	}, nil
}

func (s *numberingService) ListLogs(ctx context.Context, tenantID, scopeID string, limit uint64) ([]*numbering.LogEntry, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if limit == 0 || limit > 500 {
		limit = 100
	}
	return s.NumberingLogRepo.List(ctx, &numbering.LogFilter{
		TenantID: tenantID,
		ScopeID:  scopeID,
		Limit:    limit,
	})
}

func validateTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ierr.NewError("tenant id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
