package service

import (
	"context"
	"sort"

	"github.com/qmsuite/correlative/internal/api/dto"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	"github.com/qmsuite/correlative/internal/metrics"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// NumberingResetService zeroes counters at period boundaries
type NumberingResetService interface {
	// ResetAnnual zeroes the current-year scope of every yearly configuration of the tenant
	ResetAnnual(ctx context.Context, tenantID string) (*dto.ResetResult, error)

	// ResetMonthly zeroes the current-month scope of every monthly configuration of the tenant
	ResetMonthly(ctx context.Context, tenantID string) (*dto.ResetResult, error)

	// Reset runs the given policy for one tenant
	Reset(ctx context.Context, tenantID string, policy types.ResetPolicy) (*dto.ResetResult, error)

	// ResetAllTenants runs the policy for every tenant owning a scope
	ResetAllTenants(ctx context.Context, policy types.ResetPolicy) (*dto.ResetAllTenantsResponse, error)
}

type numberingResetService struct {
	ServiceParams
}

func NewNumberingResetService(params ServiceParams) NumberingResetService {
	return &numberingResetService{
		ServiceParams: params,
	}
}

func (s *numberingResetService) ResetAnnual(ctx context.Context, tenantID string) (*dto.ResetResult, error) {
	return s.Reset(ctx, tenantID, types.ResetPolicyAnnual)
}

func (s *numberingResetService) ResetMonthly(ctx context.Context, tenantID string) (*dto.ResetResult, error) {
	return s.Reset(ctx, tenantID, types.ResetPolicyMonthly)
}

func (s *numberingResetService) Reset(ctx context.Context, tenantID string, policy types.ResetPolicy) (*dto.ResetResult, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	period := types.PeriodForPolicy(s.now(), policy)
	result := &dto.ResetResult{
		TenantID: tenantID,
		Policy:   policy,
		Period:   period.String(),
	}

	candidates, err := s.NumberingRepo.ListResetCandidates(ctx, tenantID, policy)
	if err != nil {
		return nil, err
	}

	for _, scope := range candidates {
		reset, err := s.NumberingRepo.ResetWhere(ctx, numbering.ResetFilter{
			TenantID:   tenantID,
			EntityType: scope.EntityType,
			Prefix:     scope.Prefix,
			Period:     period,
			Defaults: numbering.ScopeDefaults{
				Format:         scope.Format,
				ResetAnnual:    scope.ResetAnnual,
				ResetMonthly:   scope.ResetMonthly,
				AdvancedConfig: scope.AdvancedConfig,
				CreatedBy:      types.GetUserID(ctx),
			},
		})
		if err != nil {
			// one configuration never aborts the batch
			result.Failed++
			metrics.ResetFailed(string(policy))
			s.Logger.Errorw("failed to reset numbering scope",
				"tenant_id", tenantID,
				"entity_type", scope.EntityType,
				"prefix", scope.Prefix,
				"period", result.Period,
				"error", err,
			)
			continue
		}

		result.ScopesAffected++
		if !reset {
			continue
		}

		result.CountersReset++
		s.writeResetAudit(ctx, scope)
	}

	metrics.CountersReset(string(policy), result.CountersReset)
	s.Logger.Infow("numbering reset completed",
		"tenant_id", tenantID,
		"policy", policy,
		"period", result.Period,
		"scopes_affected", result.ScopesAffected,
		"counters_reset", result.CountersReset,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *numberingResetService) ResetAllTenants(ctx context.Context, policy types.ResetPolicy) (*dto.ResetAllTenantsResponse, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	tenants, err := s.NumberingRepo.ListTenants(ctx)
	if err != nil {
		return nil, err
	}

	workers := s.Config.Numbering.ResetConcurrency
	if workers < 1 {
		workers = 1
	}

	p := pool.NewWithResults[*dto.ResetResult]().WithMaxGoroutines(workers)
	for _, tenantID := range tenants {
		p.Go(func() *dto.ResetResult {
			res, err := s.Reset(ctx, tenantID, policy)
			if err != nil {
				s.Logger.Errorw("numbering reset failed for tenant",
					"tenant_id", tenantID,
					"policy", policy,
					"error", err,
				)
				metrics.ResetFailed(string(policy))
				return &dto.ResetResult{
					TenantID: tenantID,
					Policy:   policy,
					Error:    err.Error(),
				}
			}
			return res
		})
	}
	results := p.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].TenantID < results[j].TenantID
	})

	resp := &dto.ResetAllTenantsResponse{
		Policy:  policy,
		Tenants: results,
	}
	for _, r := range results {
		resp.ScopesAffected += r.ScopesAffected
		resp.CountersReset += r.CountersReset
		if r.Error != "" {
			resp.FailedTenants++
		}
	}
	return resp, nil
}

func (s *numberingResetService) writeResetAudit(ctx context.Context, scope *numbering.Scope) {
	if !s.Config.Numbering.AuditLogEnabled || s.NumberingLogRepo == nil {
		return
	}

	entry := &numbering.LogEntry{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NUMBERING_LOG),
		TenantID:   scope.TenantID,
		EntityType: scope.EntityType,
		Prefix:     scope.Prefix,
		Action:     numbering.LogActionReset,
		Success:    true,
		CreatedBy:  types.GetUserID(ctx),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.NumberingLogRepo.Create(ctx, entry); err != nil {
		s.Logger.Warnw("failed to write numbering reset audit entry",
			"tenant_id", scope.TenantID,
			"entity_type", scope.EntityType,
			"prefix", scope.Prefix,
			"error", err,
		)
	}
}
